package reports

import (
	"time"

	"github.com/google/uuid"

	"audit-portal/portal-backend/internal/weeks"
)

// Report formats
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatPDF      = "pdf"
)

// Report is an AI summary of one stage
type Report struct {
	WeekID      uuid.UUID   `json:"week_id"`
	WeekVersion int         `json:"week_version"`
	ProjectName string      `json:"project_name"`
	WeekTitle   string      `json:"week_title"`
	Markdown    string      `json:"markdown"`
	Stats       weeks.Stats `json:"stats"`
	EventCount  int         `json:"event_count"`
	GeneratedAt time.Time   `json:"generated_at"`
}
