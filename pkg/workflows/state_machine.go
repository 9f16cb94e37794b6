package workflows

import (
	"fmt"
	"strings"

	"audit-portal/portal-backend/pkg/apperr"
)

// Status is the approval state of a stage
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusCompleted       Status = "completed"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Role is the part a user plays on a given stage
type Role string

const (
	RoleAuditor     Role = "auditor"
	RoleCounterpart Role = "counterpart"
)

var (
	ErrUnknownStatus        = fmt.Errorf("%w: unknown status", apperr.ErrValidation)
	ErrTransitionNotAllowed = fmt.Errorf("%w: status transition not allowed", apperr.ErrConflict)
	ErrRoleNotPermitted     = fmt.Errorf("%w: role may not perform this transition", apperr.ErrForbidden)
	ErrCommentRequired      = fmt.Errorf("%w: a rejection comment is required", apperr.ErrValidation)
	ErrConfirmationRequired = fmt.Errorf("%w: changing an approved stage must be confirmed", apperr.ErrConfirmationRequired)
)

// Rule is one row of the transition table
type Rule struct {
	From                 Status
	To                   Status
	Role                 Role
	RequiresComment      bool
	RequiresConfirmation bool
}

// StateMachine enforces stage status transitions
type StateMachine struct {
	rules              []Rule
	allowedTransitions map[Status][]Rule
}

// NewStateMachine creates a new state machine with allowed transitions
func NewStateMachine() *StateMachine {
	return newStateMachine([]Rule{
		{From: StatusDraft, To: StatusPendingApproval, Role: RoleAuditor},
		{From: StatusPendingApproval, To: StatusApproved, Role: RoleCounterpart},
		{From: StatusPendingApproval, To: StatusRejected, Role: RoleCounterpart, RequiresComment: true},
		{From: StatusRejected, To: StatusDraft, Role: RoleAuditor},
		{From: StatusApproved, To: StatusCompleted, Role: RoleAuditor},
	})
}

func newStateMachine(rules []Rule) *StateMachine {
	sm := &StateMachine{allowedTransitions: make(map[Status][]Rule)}
	for _, r := range rules {
		// leaving an approved plan always needs an explicit confirmation
		if r.From == StatusApproved {
			r.RequiresConfirmation = true
		}
		sm.rules = append(sm.rules, r)
		sm.allowedTransitions[r.From] = append(sm.allowedTransitions[r.From], r)
	}
	return sm
}

// Rules returns the transition table in declaration order
func (sm *StateMachine) Rules() []Rule {
	out := make([]Rule, len(sm.rules))
	copy(out, sm.rules)
	return out
}

func (sm *StateMachine) rule(from, to Status) (Rule, bool) {
	for _, r := range sm.allowedTransitions[from] {
		if r.To == to {
			return r, true
		}
	}
	return Rule{}, false
}

// CanTransition checks if a status transition is allowed for role
func (sm *StateMachine) CanTransition(from, to Status, role Role) bool {
	r, ok := sm.rule(from, to)
	return ok && r.Role == role
}

// GetAllowedTransitions returns the next statuses role may move a stage to
func (sm *StateMachine) GetAllowedTransitions(from Status, role Role) []Status {
	allowed := []Status{}
	for _, r := range sm.allowedTransitions[from] {
		if r.Role == role {
			allowed = append(allowed, r.To)
		}
	}
	return allowed
}

// TransitionRequest asks to move a stage from one status to another
type TransitionRequest struct {
	From      Status
	To        Status
	Role      Role
	Comment   string
	Confirmed bool
}

// TransitionResult is what the caller persists after an accepted transition
type TransitionResult struct {
	Status           Status
	RejectionComment *string
	LeftApproved     bool
}

// Transition validates req against the table. Nothing is written here, so a
// returned error means no state change may happen.
func (sm *StateMachine) Transition(req TransitionRequest) (TransitionResult, error) {
	if !req.From.Valid() || !req.To.Valid() {
		return TransitionResult{}, ErrUnknownStatus
	}

	r, ok := sm.rule(req.From, req.To)
	if !ok {
		return TransitionResult{}, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, req.From, req.To)
	}
	if r.Role != req.Role {
		return TransitionResult{}, fmt.Errorf("%w: %s -> %s requires %s", ErrRoleNotPermitted, req.From, req.To, r.Role)
	}

	comment := strings.TrimSpace(req.Comment)
	if r.RequiresComment && comment == "" {
		return TransitionResult{}, ErrCommentRequired
	}
	if r.RequiresConfirmation && !req.Confirmed {
		return TransitionResult{}, ErrConfirmationRequired
	}

	result := TransitionResult{
		Status:       req.To,
		LeftApproved: req.From == StatusApproved,
	}
	if req.To == StatusRejected {
		result.RejectionComment = &comment
	}
	return result, nil
}

// IsTerminal reports whether no transition leaves s
func (sm *StateMachine) IsTerminal(s Status) bool {
	return len(sm.allowedTransitions[s]) == 0
}

// CanEditPlan reports whether existing items and days may be changed or removed
func CanEditPlan(s Status) bool {
	return s == StatusDraft
}

// CanAddToPlan reports whether new items may be added
func CanAddToPlan(s Status) bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved:
		return true
	}
	return false
}

// CanAddDay reports whether new days may be added. A stage waiting for
// approval keeps its days.
func CanAddDay(s Status) bool {
	return s == StatusDraft || s == StatusApproved
}

// RenderTable prints the rules one per line, for docs and diagnostics.
func RenderTable(rules []Rule) string {
	var b strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&b, "%s -> %s [%s]", r.From, r.To, r.Role)
		if r.RequiresComment {
			b.WriteString(" comment")
		}
		if r.RequiresConfirmation {
			b.WriteString(" confirm")
		}
		b.WriteString("\n")
	}
	return b.String()
}
