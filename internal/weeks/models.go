package weeks

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"audit-portal/portal-backend/pkg/dates"
	"audit-portal/portal-backend/pkg/workflows"
)

// =====================================================
// Plan items
// =====================================================

// ItemType identifies the kind of work a plan item describes
type ItemType string

const (
	ItemTask        ItemType = "task"
	ItemMeeting     ItemType = "meeting"
	ItemInterview   ItemType = "interview"
	ItemDocReview   ItemType = "doc_review"
	ItemObservation ItemType = "observation"
)

// ItemData is the type-specific payload of a plan item
type ItemData interface {
	Kind() ItemType
}

type ChecklistItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type TaskData struct {
	Checklist []ChecklistItem `json:"checklist,omitempty"`
}

type MeetingData struct {
	Time         string   `json:"time,omitempty"`
	Location     string   `json:"location,omitempty"`
	Agenda       string   `json:"agenda,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Decisions    string   `json:"decisions,omitempty"`
}

type InterviewData struct {
	Time        string `json:"time,omitempty"`
	Interviewee string `json:"interviewee,omitempty"`
}

type DocumentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type DocReviewData struct {
	Documents []DocumentRef `json:"documents,omitempty"`
	Findings  string        `json:"findings,omitempty"`
}

type ObservationData struct {
	ProcessObserved string `json:"process_observed,omitempty"`
	Strengths       string `json:"strengths,omitempty"`
	Weaknesses      string `json:"weaknesses,omitempty"`
	Recommendations string `json:"recommendations,omitempty"`
}

func (TaskData) Kind() ItemType        { return ItemTask }
func (MeetingData) Kind() ItemType     { return ItemMeeting }
func (InterviewData) Kind() ItemType   { return ItemInterview }
func (DocReviewData) Kind() ItemType   { return ItemDocReview }
func (ObservationData) Kind() ItemType { return ItemObservation }

// ErrUnknownItemType is returned when decoding an item whose type is not one
// of the supported kinds.
var ErrUnknownItemType = errors.New("unknown plan item type")

// newItemData returns the empty payload for t.
func newItemData(t ItemType) (ItemData, error) {
	switch t {
	case ItemTask:
		return TaskData{}, nil
	case ItemMeeting:
		return MeetingData{}, nil
	case ItemInterview:
		return InterviewData{}, nil
	case ItemDocReview:
		return DocReviewData{}, nil
	case ItemObservation:
		return ObservationData{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemType, t)
	}
}

func decodeItemData(t ItemType, raw json.RawMessage) (ItemData, error) {
	empty := len(raw) == 0 || string(raw) == "null"
	switch t {
	case ItemTask:
		var d TaskData
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, err
			}
		}
		return d, nil
	case ItemMeeting:
		var d MeetingData
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, err
			}
		}
		return d, nil
	case ItemInterview:
		var d InterviewData
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, err
			}
		}
		return d, nil
	case ItemDocReview:
		var d DocReviewData
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, err
			}
		}
		return d, nil
	case ItemObservation:
		var d ObservationData
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemType, t)
	}
}

// PlanItem is a single unit of planned work inside a day
type PlanItem struct {
	ID         string   `json:"id"`
	Type       ItemType `json:"type"`
	Content    string   `json:"content"`
	Completed  bool     `json:"completed"`
	EventCount int      `json:"event_count"`
	Data       ItemData `json:"-"`
}

type planItemWire struct {
	ID         string          `json:"id"`
	Type       ItemType        `json:"type"`
	Content    string          `json:"content"`
	Completed  bool            `json:"completed"`
	EventCount int             `json:"event_count"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (p PlanItem) MarshalJSON() ([]byte, error) {
	data := p.Data
	if data == nil {
		var err error
		if data, err = newItemData(p.Type); err != nil {
			return nil, err
		}
	}
	if data.Kind() != p.Type {
		return nil, fmt.Errorf("plan item %s: payload %s does not match type %s", p.ID, data.Kind(), p.Type)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(planItemWire{
		ID:         p.ID,
		Type:       p.Type,
		Content:    p.Content,
		Completed:  p.Completed,
		EventCount: p.EventCount,
		Data:       raw,
	})
}

func (p *PlanItem) UnmarshalJSON(b []byte) error {
	var w planItemWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	data, err := decodeItemData(w.Type, w.Data)
	if err != nil {
		return fmt.Errorf("plan item %q: %w", w.ID, err)
	}
	*p = PlanItem{
		ID:         w.ID,
		Type:       w.Type,
		Content:    w.Content,
		Completed:  w.Completed,
		EventCount: w.EventCount,
		Data:       data,
	}
	return nil
}

// =====================================================
// Plan document
// =====================================================

// DayPlan holds the ordered items of one calendar day
type DayPlan struct {
	Tasks []PlanItem `json:"tasks"`
}

// Plan maps "YYYY-MM-DD" keys to day plans; stored as a JSONB column
type Plan map[string]DayPlan

// Value implements driver.Valuer for database storage
func (p Plan) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for database retrieval
func (p *Plan) Scan(value interface{}) error {
	if value == nil {
		*p = Plan{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Plan", value)
	}
	out := Plan{}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*p = out
	return nil
}

// =====================================================
// Week
// =====================================================

// Week is a time-boxed stage of a project with its own plan and approval status
type Week struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	ProjectID        uuid.UUID        `json:"project_id" db:"project_id"`
	UserID           uuid.UUID        `json:"user_id" db:"user_id"`
	Title            string           `json:"title" db:"title"`
	Description      *string          `json:"description" db:"description"`
	StartDate        dates.Date       `json:"start_date" db:"start_date"`
	EndDate          dates.Date       `json:"end_date" db:"end_date"`
	Status           workflows.Status `json:"status" db:"status"`
	RejectionComment *string          `json:"rejection_comment" db:"rejection_comment"`
	Plan             Plan             `json:"plan" db:"plan"`
	Version          int              `json:"version" db:"version"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// RoleFor returns the role userID plays on the week
func (w *Week) RoleFor(userID uuid.UUID) workflows.Role {
	if w.UserID == userID {
		return workflows.RoleAuditor
	}
	return workflows.RoleCounterpart
}

// =====================================================
// Request/Response DTOs
// =====================================================

// CreateWeekRequest is the payload for creating a stage
type CreateWeekRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description *string    `json:"description,omitempty"`
	StartDate   dates.Date `json:"start_date"`
	EndDate     dates.Date `json:"end_date"`
}

// UpdateWeekRequest edits stage metadata; nil fields are left alone
type UpdateWeekRequest struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	StartDate   *dates.Date `json:"start_date,omitempty"`
	EndDate     *dates.Date `json:"end_date,omitempty"`
	Version     *int        `json:"version,omitempty"`
}

// StatusChangeRequest asks for a status transition
type StatusChangeRequest struct {
	Status  workflows.Status `json:"status" binding:"required"`
	Comment string           `json:"comment,omitempty"`
	Confirm bool             `json:"confirm,omitempty"`
}

// DayRequest addresses one day of the plan
type DayRequest struct {
	Date    dates.Date `json:"date"`
	Version *int       `json:"version,omitempty"`
}

// ItemRequest carries an item to add or replace
type ItemRequest struct {
	Date    dates.Date `json:"date"`
	Item    PlanItem   `json:"item"`
	Version *int       `json:"version,omitempty"`
}

// PlanMutationResponse reports the outcome of a plan edit with the updated week
type PlanMutationResponse struct {
	Outcome Outcome   `json:"outcome"`
	Warning string    `json:"warning,omitempty"`
	Item    *PlanItem `json:"item,omitempty"`
	Week    *Week     `json:"week"`
}

// StageView is a week with the caller's permissions resolved
type StageView struct {
	*Week
	Role               workflows.Role     `json:"role"`
	AllowedTransitions []workflows.Status `json:"allowed_transitions"`
	CanEditPlan        bool               `json:"can_edit_plan"`
	CanAddToPlan       bool               `json:"can_add_to_plan"`
	CanAddDay          bool               `json:"can_add_day"`
	Stats              Stats              `json:"stats"`
}
