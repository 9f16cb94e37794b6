package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"audit-portal/portal-backend/internal/events"
	"audit-portal/portal-backend/internal/weeks"
)

const (
	planSheet   = "Plan"
	eventsSheet = "Events"
)

var (
	planColumns   = []string{"Date", "Type", "Content", "Completed", "Events"}
	eventsColumns = []string{"Created", "Type", "Author", "Task", "Content", "Files"}
)

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool   `json:"font_bold"`
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
	FillColor string `json:"fill_color"`
	Border    bool   `json:"border"`
	WrapText  bool   `json:"wrap_text"`
}

var (
	headerStyle = &ExcelStyleConfig{FontBold: true, FontSize: 11, FillColor: "4472C4", FontColor: "FFFFFF", Border: true}
	dataStyle   = &ExcelStyleConfig{FontSize: 11, Border: true, WrapText: true}
)

// WritePlanWorkbook writes a workbook with the stage plan on one sheet and
// its events on another.
func WritePlanWorkbook(w io.Writer, week *weeks.Week, evs []*events.Event) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", planSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(eventsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	taskNames := map[string]string{}
	var planRows [][]interface{}
	for _, date := range week.Plan.Dates() {
		for _, item := range week.Plan[date].Tasks {
			taskNames[item.ID] = item.Content
			completed := "No"
			if item.Completed {
				completed = "Yes"
			}
			planRows = append(planRows, []interface{}{date, string(item.Type), item.Content, completed, item.EventCount})
		}
	}

	eventRows := make([][]interface{}, 0, len(evs))
	for _, e := range evs {
		files := make([]string, 0, len(e.Data.FileURLs))
		for _, ref := range e.Data.FileURLs {
			files = append(files, ref.URL)
		}
		task := taskNames[e.TaskID]
		if task == "" {
			task = e.TaskID
		}
		eventRows = append(eventRows, []interface{}{
			e.CreatedAt.UTC().Format("2006-01-02 15:04"),
			string(e.Type), e.AuthorEmail, task, e.Content, strings.Join(files, "\n"),
		})
	}

	if err := writeSheet(f, planSheet, planColumns, planRows, []float64{12, 14, 60, 11, 8}); err != nil {
		return err
	}
	if err := writeSheet(f, eventsSheet, eventsColumns, eventRows, []float64{17, 20, 28, 40, 60, 40}); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, columns []string, rows [][]interface{}, widths []float64) error {
	header, err := createStyle(f, headerStyle)
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	data, err := createStyle(f, dataStyle)
	if err != nil {
		return fmt.Errorf("failed to create data style: %w", err)
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
		name, _ := excelize.ColumnNumberToName(i + 1)
		if i < len(widths) {
			_ = f.SetColWidth(sheet, name, name, widths[i])
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	_ = f.SetCellStyle(sheet, "A1", last, header)
	_ = f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	if len(rows) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(columns), len(rows)+1)
		_ = f.SetCellStyle(sheet, "A2", end, data)
		_ = f.AutoFilter(sheet, "A1:"+end, nil)
	}
	return nil
}

func createStyle(f *excelize.File, config *ExcelStyleConfig) (int, error) {
	style := &excelize.Style{
		Font:      &excelize.Font{Bold: config.FontBold, Size: float64(config.FontSize), Color: config.FontColor},
		Alignment: &excelize.Alignment{WrapText: config.WrapText, Vertical: "top"},
	}
	if config.FillColor != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{config.FillColor}}
	}
	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}
	return f.NewStyle(style)
}
