package projects

import (
	"time"

	"github.com/google/uuid"

	"audit-portal/portal-backend/internal/weeks"
	"audit-portal/portal-backend/pkg/dates"
)

// ApprovalPeriod is how often the counterpart signs off on progress
type ApprovalPeriod string

const (
	PeriodWeekly  ApprovalPeriod = "weekly"
	PeriodMonthly ApprovalPeriod = "monthly"
)

// Valid reports whether p is a known period
func (p ApprovalPeriod) Valid() bool {
	return p == PeriodWeekly || p == PeriodMonthly
}

// Project is an audit engagement owned by one auditor
type Project struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	UserID         uuid.UUID      `json:"user_id" db:"user_id"`
	Name           string         `json:"name" db:"name"`
	Description    *string        `json:"description" db:"description"`
	StartDate      dates.Date     `json:"start_date" db:"start_date"`
	EndDate        dates.Date     `json:"end_date" db:"end_date"`
	ApprovalPeriod ApprovalPeriod `json:"approval_period" db:"approval_period"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsOwner reports whether userID is the project's auditor
func (p *Project) IsOwner(userID uuid.UUID) bool {
	return p.UserID == userID
}

// ProjectDetail is a project with its stages
type ProjectDetail struct {
	*Project
	Weeks []*weeks.Week `json:"weeks"`
}

// =====================================================
// Request/Response DTOs
// =====================================================

// CreateProjectRequest is the payload for creating a project. With
// GeneratePlan set the stages are drafted by the AI before anything is stored.
type CreateProjectRequest struct {
	Name           string         `json:"name" binding:"required"`
	Description    *string        `json:"description,omitempty"`
	StartDate      dates.Date     `json:"start_date"`
	EndDate        dates.Date     `json:"end_date"`
	ApprovalPeriod ApprovalPeriod `json:"approval_period"`
	GeneratePlan   bool           `json:"generate_plan"`
}

// UpdateProjectRequest edits project metadata; nil fields are left alone
type UpdateProjectRequest struct {
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	ApprovalPeriod *ApprovalPeriod `json:"approval_period,omitempty"`
}

// ShareLink is the URL that opens a project in the portal
type ShareLink struct {
	ProjectID uuid.UUID `json:"project_id"`
	URL       string    `json:"url"`
}
