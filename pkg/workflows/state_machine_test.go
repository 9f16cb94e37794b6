package workflows

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audit-portal/portal-backend/pkg/apperr"
)

var allStatuses = []Status{StatusDraft, StatusPendingApproval, StatusApproved, StatusRejected, StatusCompleted}
var allRoles = []Role{RoleAuditor, RoleCounterpart}

func TestTransitionTableGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "transition_table", []byte(RenderTable(NewStateMachine().Rules())))
}

func TestTransitionExhaustive(t *testing.T) {
	sm := NewStateMachine()
	accepted := map[[3]string]bool{
		{"draft", "pending_approval", "auditor"}:        true,
		{"pending_approval", "approved", "counterpart"}: true,
		{"pending_approval", "rejected", "counterpart"}: true,
		{"rejected", "draft", "auditor"}:                true,
		{"approved", "completed", "auditor"}:            true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			for _, role := range allRoles {
				key := [3]string{string(from), string(to), string(role)}
				res, err := sm.Transition(TransitionRequest{
					From:      from,
					To:        to,
					Role:      role,
					Comment:   "Missing dates",
					Confirmed: true,
				})

				if !accepted[key] {
					assert.Error(t, err, "%v should be rejected", key)
					assert.False(t, sm.CanTransition(from, to, role))
					continue
				}

				require.NoError(t, err, "%v should be accepted", key)
				assert.True(t, sm.CanTransition(from, to, role))
				assert.Equal(t, to, res.Status)
				if to == StatusRejected {
					require.NotNil(t, res.RejectionComment)
					assert.Equal(t, "Missing dates", *res.RejectionComment)
				} else {
					assert.Nil(t, res.RejectionComment)
				}
			}
		}
	}
}

func TestRejectAndReopen(t *testing.T) {
	sm := NewStateMachine()

	res, err := sm.Transition(TransitionRequest{
		From:    StatusPendingApproval,
		To:      StatusRejected,
		Role:    RoleCounterpart,
		Comment: "Missing dates",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, "Missing dates", *res.RejectionComment)

	res, err = sm.Transition(TransitionRequest{From: res.Status, To: StatusDraft, Role: RoleAuditor})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, res.Status)
	assert.Nil(t, res.RejectionComment)
}

func TestRejectRequiresComment(t *testing.T) {
	sm := NewStateMachine()
	_, err := sm.Transition(TransitionRequest{
		From:    StatusPendingApproval,
		To:      StatusRejected,
		Role:    RoleCounterpart,
		Comment: "   ",
	})
	assert.ErrorIs(t, err, ErrCommentRequired)
	assert.Equal(t, 400, apperr.Status(err))
}

func TestLeavingApprovedRequiresConfirmation(t *testing.T) {
	sm := NewStateMachine()
	_, err := sm.Transition(TransitionRequest{From: StatusApproved, To: StatusCompleted, Role: RoleAuditor})
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, 428, apperr.Status(err))

	res, err := sm.Transition(TransitionRequest{From: StatusApproved, To: StatusCompleted, Role: RoleAuditor, Confirmed: true})
	require.NoError(t, err)
	assert.True(t, res.LeftApproved)
}

func TestErrorKinds(t *testing.T) {
	sm := NewStateMachine()

	_, err := sm.Transition(TransitionRequest{From: StatusDraft, To: StatusApproved, Role: RoleCounterpart})
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, 409, apperr.Status(err))

	_, err = sm.Transition(TransitionRequest{From: StatusDraft, To: StatusPendingApproval, Role: RoleCounterpart})
	assert.ErrorIs(t, err, ErrRoleNotPermitted)
	assert.Equal(t, 403, apperr.Status(err))

	_, err = sm.Transition(TransitionRequest{From: StatusDraft, To: Status("changes_requested"), Role: RoleAuditor})
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestGetAllowedTransitions(t *testing.T) {
	sm := NewStateMachine()
	assert.ElementsMatch(t, []Status{StatusApproved, StatusRejected}, sm.GetAllowedTransitions(StatusPendingApproval, RoleCounterpart))
	assert.Empty(t, sm.GetAllowedTransitions(StatusPendingApproval, RoleAuditor))
	assert.Empty(t, sm.GetAllowedTransitions(StatusCompleted, RoleAuditor))
	assert.True(t, sm.IsTerminal(StatusCompleted))
	assert.False(t, sm.IsTerminal(StatusDraft))
}

func TestPlanPermissions(t *testing.T) {
	assert.True(t, CanEditPlan(StatusDraft))
	assert.False(t, CanEditPlan(StatusPendingApproval))
	assert.False(t, CanEditPlan(StatusApproved))

	assert.True(t, CanAddToPlan(StatusDraft))
	assert.True(t, CanAddToPlan(StatusPendingApproval))
	assert.True(t, CanAddToPlan(StatusApproved))
	assert.False(t, CanAddToPlan(StatusRejected))
	assert.False(t, CanAddToPlan(StatusCompleted))

	assert.True(t, CanAddDay(StatusDraft))
	assert.False(t, CanAddDay(StatusPendingApproval))
	assert.True(t, CanAddDay(StatusApproved))
	assert.False(t, CanAddDay(StatusRejected))
	assert.False(t, CanAddDay(StatusCompleted))
}
