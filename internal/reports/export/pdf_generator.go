package export

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions configures PDF generation
type PDFOptions struct {
	PageSize      string     `json:"page_size"`
	FontFamily    string     `json:"font_family"`
	FontSize      float64    `json:"font_size"`
	TitleFontSize float64    `json:"title_font_size"`
	HeaderColor   PDFColor   `json:"header_color"`
	DateFormat    string     `json:"date_format"`
	Margins       PDFMargins `json:"margins"`
}

// PDFColor represents an RGB color
type PDFColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// PDFMargins represents page margins
type PDFMargins struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// DefaultPDFOptions returns default PDF options
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:      "A4",
		FontFamily:    "Arial",
		FontSize:      10,
		TitleFontSize: 16,
		HeaderColor:   PDFColor{R: 68, G: 114, B: 196},
		DateFormat:    "2006-01-02 15:04",
		Margins:       PDFMargins{Left: 15, Right: 15, Top: 20, Bottom: 20},
	}
}

// Document is a titled Markdown text to render
type Document struct {
	Title       string
	Subtitle    string
	Markdown    string
	GeneratedAt time.Time
}

// BlockKind is the kind of a rendered Markdown line
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading1
	BlockHeading2
	BlockHeading3
	BlockBullet
	BlockNumbered
	BlockBlank
)

// Block is one line of Markdown reduced to what the PDF renders
type Block struct {
	Kind   BlockKind
	Text   string
	Marker string
}

var (
	numberedRe = regexp.MustCompile(`^(\d+)[.)]\s+(.*)$`)
	inlineRe   = regexp.MustCompile("\\*\\*|__|`")
)

// ParseMarkdown splits the subset of Markdown the AI writes into blocks.
// Inline emphasis markers are dropped.
func ParseMarkdown(md string) []Block {
	var blocks []Block
	for _, raw := range strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			if n := len(blocks); n > 0 && blocks[n-1].Kind != BlockBlank {
				blocks = append(blocks, Block{Kind: BlockBlank})
			}
			continue
		case strings.HasPrefix(line, "### "):
			blocks = append(blocks, Block{Kind: BlockHeading3, Text: clean(line[4:])})
		case strings.HasPrefix(line, "## "):
			blocks = append(blocks, Block{Kind: BlockHeading2, Text: clean(line[3:])})
		case strings.HasPrefix(line, "# "):
			blocks = append(blocks, Block{Kind: BlockHeading1, Text: clean(line[2:])})
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			blocks = append(blocks, Block{Kind: BlockBullet, Text: clean(line[2:]), Marker: "-"})
		default:
			if m := numberedRe.FindStringSubmatch(line); m != nil {
				blocks = append(blocks, Block{Kind: BlockNumbered, Text: clean(m[2]), Marker: m[1] + "."})
				continue
			}
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: clean(line)})
		}
	}
	if n := len(blocks); n > 0 && blocks[n-1].Kind == BlockBlank {
		blocks = blocks[:n-1]
	}
	return blocks
}

func clean(s string) string {
	return strings.TrimSpace(inlineRe.ReplaceAllString(s, ""))
}

// WriteMarkdownPDF renders doc to w
func WriteMarkdownPDF(w io.Writer, doc Document, opts PDFOptions) error {
	pdf := gofpdf.New("P", "mm", opts.PageSize, "")
	pdf.SetMargins(opts.Margins.Left, opts.Margins.Top, opts.Margins.Right)
	pdf.SetAutoPageBreak(true, opts.Margins.Bottom)
	pdf.SetTitle(doc.Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(opts.FontFamily, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(opts.FontFamily, "B", opts.TitleFontSize)
	pdf.SetTextColor(opts.HeaderColor.R, opts.HeaderColor.G, opts.HeaderColor.B)
	pdf.MultiCell(0, 9, tr(doc.Title), "", "C", false)
	if doc.Subtitle != "" {
		pdf.SetFont(opts.FontFamily, "", opts.FontSize+2)
		pdf.SetTextColor(100, 100, 100)
		pdf.MultiCell(0, 7, tr(doc.Subtitle), "", "C", false)
	}
	if !doc.GeneratedAt.IsZero() {
		pdf.SetFont(opts.FontFamily, "", opts.FontSize-1)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 6, "Generated: "+doc.GeneratedAt.Format(opts.DateFormat), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	for _, b := range ParseMarkdown(doc.Markdown) {
		switch b.Kind {
		case BlockHeading1:
			pdf.SetFont(opts.FontFamily, "B", opts.FontSize+4)
			pdf.MultiCell(0, 8, tr(b.Text), "", "L", false)
		case BlockHeading2:
			pdf.SetFont(opts.FontFamily, "B", opts.FontSize+2)
			pdf.MultiCell(0, 7, tr(b.Text), "", "L", false)
		case BlockHeading3:
			pdf.SetFont(opts.FontFamily, "B", opts.FontSize+1)
			pdf.MultiCell(0, 6, tr(b.Text), "", "L", false)
		case BlockBullet, BlockNumbered:
			pdf.SetFont(opts.FontFamily, "", opts.FontSize)
			pdf.CellFormat(8, 5, tr(b.Marker), "", 0, "R", false, 0, "")
			pdf.MultiCell(0, 5, tr(b.Text), "", "L", false)
		case BlockBlank:
			pdf.Ln(3)
		default:
			pdf.SetFont(opts.FontFamily, "", opts.FontSize)
			pdf.MultiCell(0, 5, tr(b.Text), "", "L", false)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return pdf.Output(w)
}
