package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChangeType is the kind of row change
type ChangeType string

const (
	Insert ChangeType = "INSERT"
	Update ChangeType = "UPDATE"
	Delete ChangeType = "DELETE"
)

// Source tells whether a change came from this process or from the database
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Tables that emit change notifications
const (
	TableProjects = "projects"
	TableWeeks    = "weeks"
	TableEvents   = "events"
)

// Change is one row-level notification
type Change struct {
	Table     string          `json:"table"`
	Type      ChangeType      `json:"type"`
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id,omitempty"`
	WeekID    string          `json:"week_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
	Source    Source          `json:"source"`
	At        time.Time       `json:"at"`
}

// Scope carries the ids a change can be filtered on
type Scope struct {
	ProjectID string
	WeekID    string
	TaskID    string
}

// LocalChange builds a change for a write this process just committed
func LocalChange(table string, typ ChangeType, id string, scope Scope, record interface{}) Change {
	c := Change{
		Table:     table,
		Type:      typ,
		ID:        id,
		ProjectID: scope.ProjectID,
		WeekID:    scope.WeekID,
		TaskID:    scope.TaskID,
		Source:    SourceLocal,
		At:        time.Now().UTC(),
	}
	if record != nil {
		if raw, err := json.Marshal(record); err == nil {
			if typ == Delete {
				c.OldRecord = raw
			} else {
				c.Record = raw
			}
		}
	}
	return c
}

// Token identifies the row content a change carries, built from the row
// version and updated_at columns the record has. It is empty when the
// record was left out of the notification.
func (c Change) Token() string {
	raw := c.Record
	if len(raw) == 0 {
		raw = c.OldRecord
	}
	if len(raw) == 0 {
		return ""
	}
	var row struct {
		Version   *int   `json:"version"`
		UpdatedAt string `json:"updated_at"`
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return ""
	}

	var token string
	if row.Version != nil {
		token = "v" + strconv.Itoa(*row.Version)
	}
	if row.UpdatedAt != "" {
		// postgres and encoding/json format the same instant differently
		if at, err := time.Parse(time.RFC3339Nano, row.UpdatedAt); err == nil {
			token += "t" + strconv.FormatInt(at.UnixMicro(), 10)
		}
	}
	return token
}

// Publisher accepts changes for fan-out
type Publisher interface {
	Publish(change Change)
}

// NopPublisher drops every change
type NopPublisher struct{}

func (NopPublisher) Publish(Change) {}

// Filter selects changes of one table, optionally narrowed by a single
// column equality written as "column=eq.value".
type Filter struct {
	Table  string `json:"table"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
}

var filterColumns = map[string]bool{
	"id":         true,
	"project_id": true,
	"week_id":    true,
	"task_id":    true,
}

// ParseFilter reads a table name and an optional "column=eq.value" expression
func ParseFilter(table, expr string) (Filter, error) {
	switch table {
	case TableProjects, TableWeeks, TableEvents:
	default:
		return Filter{}, fmt.Errorf("unknown table %q", table)
	}

	f := Filter{Table: table}
	if expr == "" {
		return f, nil
	}

	column, rest, ok := strings.Cut(expr, "=")
	if !ok {
		return Filter{}, fmt.Errorf("invalid filter %q: expected column=eq.value", expr)
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok || value == "" {
		return Filter{}, fmt.Errorf("invalid filter %q: only eq is supported", expr)
	}
	if !filterColumns[column] {
		return Filter{}, fmt.Errorf("invalid filter column %q", column)
	}
	f.Column = column
	f.Value = value
	return f, nil
}

// Matches reports whether c passes the filter
func (f Filter) Matches(c Change) bool {
	if f.Table != c.Table {
		return false
	}
	switch f.Column {
	case "":
		return true
	case "id":
		return c.ID == f.Value
	case "project_id":
		return c.ProjectID == f.Value
	case "week_id":
		return c.WeekID == f.Value
	case "task_id":
		return c.TaskID == f.Value
	}
	return false
}

func (f Filter) String() string {
	if f.Column == "" {
		return f.Table
	}
	return fmt.Sprintf("%s:%s=eq.%s", f.Table, f.Column, f.Value)
}
