package events

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of entry in a task's feed
type EventType string

const (
	TypeComment             EventType = "comment"
	TypeMeeting             EventType = "meeting"
	TypeDocumentationReview EventType = "documentation_review"
	TypeInterview           EventType = "interview"
)

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	switch t {
	case TypeComment, TypeMeeting, TypeDocumentationReview, TypeInterview:
		return true
	}
	return false
}

// FileRef describes an uploaded attachment
type FileRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// Data holds the optional structured part of an event; stored as JSONB
type Data struct {
	MeetingTime  *time.Time `json:"meeting_time,omitempty"`
	Participants []string   `json:"participants,omitempty"`
	FileURLs     []FileRef  `json:"file_urls,omitempty"`
}

// Value implements driver.Valuer for database storage
func (d Data) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for database retrieval
func (d *Data) Scan(value interface{}) error {
	if value == nil {
		*d = Data{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into event data", value)
	}
	return json.Unmarshal(b, d)
}

// ParentRef is the snapshot of the event being replied to
type ParentRef struct {
	Content     string `json:"content"`
	AuthorEmail string `json:"author_email"`
}

// Event is an immutable entry in a plan item's feed
type Event struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ProjectID     uuid.UUID  `json:"project_id" db:"project_id"`
	WeekID        uuid.UUID  `json:"week_id" db:"week_id"`
	TaskID        string     `json:"task_id" db:"task_id"`
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	AuthorEmail   string     `json:"author_email" db:"author_email"`
	Type          EventType  `json:"type" db:"type"`
	Content       string     `json:"content" db:"content"`
	Data          Data       `json:"data" db:"data"`
	ParentEventID *uuid.UUID `json:"parent_event_id" db:"parent_event_id"`
	Parent        *ParentRef `json:"parent" db:"-"`
}

// Author identifies who appends an event
type Author struct {
	UserID uuid.UUID
	Email  string
}

// Upload is one attachment to store before the event is inserted
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AppendRequest carries everything needed to add an event
type AppendRequest struct {
	ProjectID     uuid.UUID  `json:"project_id" form:"-"`
	WeekID        uuid.UUID  `json:"week_id" form:"-"`
	TaskID        string     `json:"task_id" form:"task_id"`
	Type          EventType  `json:"type" form:"type"`
	Content       string     `json:"content" form:"content"`
	MeetingTime   string     `json:"meeting_time,omitempty" form:"meeting_time"`
	Participants  []string   `json:"participants,omitempty" form:"participants"`
	ParentEventID *uuid.UUID `json:"parent_event_id,omitempty" form:"-"`
	// DurationSeconds is the length of an attached interview recording
	DurationSeconds int      `json:"duration_seconds,omitempty" form:"duration_seconds"`
	Files           []Upload `json:"-" form:"-"`
}

// Target addresses a plan item feed
type Target struct {
	ProjectID uuid.UUID `json:"project_id"`
	WeekID    uuid.UUID `json:"week_id"`
	TaskID    string    `json:"task_id"`
}

// InterviewAnalysisRequest asks for AI analysis of an interview
type InterviewAnalysisRequest struct {
	Target
	Context       string     `json:"context"`
	ParentEventID *uuid.UUID `json:"parent_event_id,omitempty"`
}
