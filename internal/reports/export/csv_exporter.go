package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"audit-portal/portal-backend/internal/events"
)

var csvColumns = []string{"id", "created_at", "type", "author_email", "task_id", "content", "parent_event_id", "files"}

// WriteEventsCSV writes one row per event. Attachment URLs are joined with
// spaces.
func WriteEventsCSV(w io.Writer, evs []*events.Event) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range evs {
		parent := ""
		if e.ParentEventID != nil {
			parent = e.ParentEventID.String()
		}
		urls := make([]string, 0, len(e.Data.FileURLs))
		for _, ref := range e.Data.FileURLs {
			urls = append(urls, ref.URL)
		}
		record := []string{
			e.ID.String(),
			e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			string(e.Type),
			e.AuthorEmail,
			e.TaskID,
			e.Content,
			parent,
			strings.Join(urls, " "),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
