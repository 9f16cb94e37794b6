package weeks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/realtime"
	"audit-portal/portal-backend/pkg/apperr"
	"audit-portal/portal-backend/pkg/dates"
	"audit-portal/portal-backend/pkg/workflows"
)

// ProjectOwnerLookup resolves the auditor who owns a project
type ProjectOwnerLookup interface {
	ProjectOwner(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error)
}

// StatusChange describes an accepted status transition
type StatusChange struct {
	Week      *Week
	From      workflows.Status
	ActorID   uuid.UUID
	ActorRole workflows.Role
	// LeftApproved is set when a plan both sides had agreed on moved on
	LeftApproved bool
}

// StatusNotifier is told about every accepted transition. Delivery problems
// stay inside the notifier.
type StatusNotifier interface {
	StatusChanged(ctx context.Context, change StatusChange)
}

type nopNotifier struct{}

func (nopNotifier) StatusChanged(context.Context, StatusChange) {}

// Service provides stage and plan business logic
type Service struct {
	repo      Repository
	projects  ProjectOwnerLookup
	machine   *workflows.StateMachine
	publisher realtime.Publisher
	notifier  StatusNotifier
	logger    *zap.Logger
}

// NewService creates a new weeks service
func NewService(repo Repository, projects ProjectOwnerLookup, publisher realtime.Publisher, notifier StatusNotifier, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		repo:      repo,
		projects:  projects,
		machine:   workflows.NewStateMachine(),
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
	}
}

// StateMachine exposes the transition table used by the service
func (s *Service) StateMachine() *workflows.StateMachine {
	return s.machine
}

// =====================================================
// Weeks
// =====================================================

// CreateWeek adds a draft stage with one empty day per date
func (s *Service) CreateWeek(ctx context.Context, userID, projectID uuid.UUID, req *CreateWeekRequest) (*Week, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if err := validateRange(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	owner, err := s.projects.ProjectOwner(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if owner != userID {
		return nil, apperr.Forbidden("only the project auditor can add stages")
	}

	week := &Week{
		ID:          uuid.New(),
		ProjectID:   projectID,
		UserID:      userID,
		Title:       title,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Status:      workflows.StatusDraft,
		Plan:        NewPlanForRange(req.StartDate, req.EndDate),
		Version:     1,
	}
	if err := s.repo.CreateWeek(ctx, week); err != nil {
		return nil, err
	}

	s.publish(realtime.Insert, week)
	s.logger.Info("Week created",
		zap.String("week_id", week.ID.String()),
		zap.String("project_id", projectID.String()),
	)
	return week, nil
}

func (s *Service) GetWeek(ctx context.Context, id uuid.UUID) (*Week, error) {
	return s.repo.GetWeek(ctx, id)
}

// GetStageView returns the week with the caller's role and permissions
func (s *Service) GetStageView(ctx context.Context, userID, id uuid.UUID) (*StageView, error) {
	week, err := s.repo.GetWeek(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(week, userID), nil
}

func (s *Service) view(week *Week, userID uuid.UUID) *StageView {
	role := week.RoleFor(userID)
	return &StageView{
		Week:               week,
		Role:               role,
		AllowedTransitions: s.machine.GetAllowedTransitions(week.Status, role),
		CanEditPlan:        role == workflows.RoleAuditor && workflows.CanEditPlan(week.Status),
		CanAddToPlan:       role == workflows.RoleAuditor && workflows.CanAddToPlan(week.Status),
		CanAddDay:          role == workflows.RoleAuditor && workflows.CanAddDay(week.Status),
		Stats:              week.Plan.Stats(),
	}
}

func (s *Service) ListWeeks(ctx context.Context, projectID uuid.UUID) ([]*Week, error) {
	return s.repo.ListWeeks(ctx, projectID)
}

// UpdateWeek edits title, description and dates of a draft stage. Date
// changes refit the plan to the new range.
func (s *Service) UpdateWeek(ctx context.Context, userID, id uuid.UUID, req *UpdateWeekRequest) (*Week, error) {
	week, err := s.repo.GetWeek(ctx, id)
	if err != nil {
		return nil, err
	}
	if week.RoleFor(userID) != workflows.RoleAuditor {
		return nil, apperr.Forbidden("only the auditor can edit a stage")
	}
	if !workflows.CanEditPlan(week.Status) {
		return nil, apperr.Forbidden(fmt.Sprintf("stage is %s; only drafts can be edited", week.Status))
	}
	if err := checkVersion(week, req.Version); err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, apperr.Validation("title is required")
		}
		week.Title = title
	}
	if req.Description != nil {
		week.Description = req.Description
	}

	start, end := week.StartDate, week.EndDate
	if req.StartDate != nil {
		start = *req.StartDate
	}
	if req.EndDate != nil {
		end = *req.EndDate
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	if !start.Equal(week.StartDate) || !end.Equal(week.EndDate) {
		week.Plan = week.Plan.MergeRange(start, end)
		week.StartDate, week.EndDate = start, end
	}

	if err := s.repo.UpdateWeek(ctx, week, week.Version); err != nil {
		return nil, err
	}
	s.publish(realtime.Update, week)
	return week, nil
}

func (s *Service) DeleteWeek(ctx context.Context, userID, id uuid.UUID) error {
	week, err := s.repo.GetWeek(ctx, id)
	if err != nil {
		return err
	}
	if week.RoleFor(userID) != workflows.RoleAuditor {
		return apperr.Forbidden("only the auditor can delete a stage")
	}
	if week.Status != workflows.StatusDraft {
		return apperr.Forbidden("only draft stages can be deleted")
	}
	if err := s.repo.DeleteWeek(ctx, id); err != nil {
		return err
	}
	s.publish(realtime.Delete, week)
	s.logger.Info("Week deleted", zap.String("week_id", id.String()))
	return nil
}

// =====================================================
// Status workflow
// =====================================================

// ChangeStatus applies a transition. Every check happens before the write.
func (s *Service) ChangeStatus(ctx context.Context, userID, id uuid.UUID, req *StatusChangeRequest) (*Week, error) {
	week, err := s.repo.GetWeek(ctx, id)
	if err != nil {
		return nil, err
	}

	role := week.RoleFor(userID)
	from := week.Status
	result, err := s.machine.Transition(workflows.TransitionRequest{
		From:      from,
		To:        req.Status,
		Role:      role,
		Comment:   req.Comment,
		Confirmed: req.Confirm,
	})
	if err != nil {
		return nil, err
	}

	week.Status = result.Status
	week.RejectionComment = result.RejectionComment
	if err := s.repo.UpdateWeek(ctx, week, week.Version); err != nil {
		return nil, err
	}

	s.publish(realtime.Update, week)
	s.notifier.StatusChanged(ctx, StatusChange{
		Week:         week,
		From:         from,
		ActorID:      userID,
		ActorRole:    role,
		LeftApproved: result.LeftApproved,
	})
	s.logger.Info("Week status changed",
		zap.String("week_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(result.Status)),
		zap.String("role", string(role)),
	)
	return week, nil
}

// =====================================================
// Plan mutations
// =====================================================

type planCheck func(*Week) error

func requireEditable(w *Week) error {
	if !workflows.CanEditPlan(w.Status) {
		return apperr.Forbidden(fmt.Sprintf("stage is %s; existing plan entries can only change in draft", w.Status))
	}
	return nil
}

func requireDayAddable(w *Week) error {
	if !workflows.CanAddDay(w.Status) {
		return apperr.Forbidden(fmt.Sprintf("stage is %s; days cannot be added", w.Status))
	}
	return nil
}

func requireAddable(w *Week) error {
	if !workflows.CanAddToPlan(w.Status) {
		return apperr.Forbidden(fmt.Sprintf("stage is %s; the plan is locked", w.Status))
	}
	return nil
}

// mutatePlan loads the week, checks role, status and version, applies fn and
// persists the result. Outcomes that change nothing skip the write.
func (s *Service) mutatePlan(ctx context.Context, userID, weekID uuid.UUID, version *int, check planCheck, fn func(*Week) (Plan, Outcome, error)) (*Week, Outcome, error) {
	week, err := s.repo.GetWeek(ctx, weekID)
	if err != nil {
		return nil, "", err
	}
	if week.RoleFor(userID) != workflows.RoleAuditor {
		return nil, "", apperr.Forbidden("only the auditor can change the plan")
	}
	if err := check(week); err != nil {
		return nil, "", err
	}
	if err := checkVersion(week, version); err != nil {
		return nil, "", err
	}

	plan, outcome, err := fn(week)
	if err != nil {
		return nil, "", err
	}
	switch outcome {
	case DayAlreadyExists, DayNotFound, ItemNotFound:
		return week, outcome, nil
	}

	week.Plan = plan
	if err := s.repo.UpdateWeek(ctx, week, week.Version); err != nil {
		return nil, "", err
	}
	s.publish(realtime.Update, week)
	return week, outcome, nil
}

func (s *Service) AddDay(ctx context.Context, userID, weekID uuid.UUID, req *DayRequest, version *int) (*Week, Outcome, error) {
	if req.Date.IsZero() {
		return nil, "", apperr.Validation("date is required")
	}
	return s.mutatePlan(ctx, userID, weekID, version, requireDayAddable, func(w *Week) (Plan, Outcome, error) {
		if !req.Date.Within(w.StartDate, w.EndDate) {
			return nil, "", outOfRange(req.Date, w)
		}
		plan, outcome := w.Plan.AddDay(req.Date)
		return plan, outcome, nil
	})
}

func (s *Service) DeleteDay(ctx context.Context, userID, weekID uuid.UUID, day dates.Date, version *int) (*Week, Outcome, error) {
	return s.mutatePlan(ctx, userID, weekID, version, requireEditable, func(w *Week) (Plan, Outcome, error) {
		plan, outcome := w.Plan.DeleteDay(day)
		return plan, outcome, nil
	})
}

func (s *Service) AddItem(ctx context.Context, userID, weekID uuid.UUID, req *ItemRequest, version *int) (*Week, *PlanItem, error) {
	if req.Date.IsZero() {
		return nil, nil, apperr.Validation("date is required")
	}
	if err := validateItem(req.Item); err != nil {
		return nil, nil, err
	}

	var added PlanItem
	week, _, err := s.mutatePlan(ctx, userID, weekID, version, requireAddable, func(w *Week) (Plan, Outcome, error) {
		if !req.Date.Within(w.StartDate, w.EndDate) {
			return nil, "", outOfRange(req.Date, w)
		}
		if req.Item.ID != "" {
			if _, _, exists := w.Plan.FindItem(req.Item.ID); exists {
				return nil, "", apperr.Validation(fmt.Sprintf("item %s already exists", req.Item.ID))
			}
		}
		plan, item := w.Plan.AddItem(req.Date, req.Item)
		added = item
		return plan, ItemAdded, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return week, &added, nil
}

func (s *Service) UpdateItem(ctx context.Context, userID, weekID uuid.UUID, item PlanItem, version *int) (*Week, Outcome, error) {
	if item.ID == "" {
		return nil, "", apperr.Validation("item id is required")
	}
	if err := validateItem(item); err != nil {
		return nil, "", err
	}
	return s.mutatePlan(ctx, userID, weekID, version, requireEditable, func(w *Week) (Plan, Outcome, error) {
		plan, outcome := w.Plan.UpdateItem(item)
		return plan, outcome, nil
	})
}

func (s *Service) DeleteItem(ctx context.Context, userID, weekID uuid.UUID, day dates.Date, itemID string, version *int) (*Week, Outcome, error) {
	return s.mutatePlan(ctx, userID, weekID, version, requireEditable, func(w *Week) (Plan, Outcome, error) {
		plan, outcome := w.Plan.DeleteItem(day, itemID)
		return plan, outcome, nil
	})
}

// =====================================================
// Event counts
// =====================================================

// maxCountAttempts bounds the retries of a count update racing a plan edit
const maxCountAttempts = 3

// AdjustEventCount moves an item's denormalized event count by delta. It is
// called by the event log after each insert or delete, regardless of status,
// and leaves the week version untouched so plan edits in flight still apply.
func (s *Service) AdjustEventCount(ctx context.Context, weekID uuid.UUID, taskID string, delta int) error {
	for attempt := 0; attempt < maxCountAttempts; attempt++ {
		week, err := s.repo.GetWeek(ctx, weekID)
		if err != nil {
			return err
		}
		if _, _, ok := week.Plan.FindItem(taskID); !ok {
			// the item was removed from the plan; its events stay orphaned
			return nil
		}
		done, err := s.repo.IncrementEventCount(ctx, week, taskID, delta)
		if err != nil {
			return err
		}
		if done {
			s.publish(realtime.Update, week)
			return nil
		}
	}
	return fmt.Errorf("failed to adjust event count of %s: %w", taskID, ErrStaleWrite)
}

// ResyncEventCounts recomputes every item's count in a project from the
// events table, repairing drift left by concurrent writes.
func (s *Service) ResyncEventCounts(ctx context.Context, projectID uuid.UUID) (int, error) {
	counts, err := s.repo.GetEventCounts(ctx, projectID)
	if err != nil {
		return 0, err
	}
	weeks, err := s.repo.ListWeeks(ctx, projectID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, week := range weeks {
		plan, changed := week.Plan.ApplyEventCounts(counts)
		if !changed {
			continue
		}
		week.Plan = plan
		if err := s.repo.WriteEventCounts(ctx, week, week.Version); err != nil {
			if errors.Is(err, ErrStaleWrite) {
				s.logger.Warn("Skipping week changed during resync", zap.String("week_id", week.ID.String()))
				continue
			}
			return updated, err
		}
		s.publish(realtime.Update, week)
		updated++
	}
	return updated, nil
}

// =====================================================
// Helpers
// =====================================================

func (s *Service) publish(typ realtime.ChangeType, week *Week) {
	s.publisher.Publish(realtime.LocalChange(realtime.TableWeeks, typ, week.ID.String(), realtime.Scope{
		ProjectID: week.ProjectID.String(),
		WeekID:    week.ID.String(),
	}, week))
}

func checkVersion(week *Week, version *int) error {
	if version != nil && *version != week.Version {
		return ErrStaleWrite
	}
	return nil
}

func validateRange(start, end dates.Date) error {
	if start.IsZero() || end.IsZero() {
		return apperr.Validation("start_date and end_date are required")
	}
	if end.Before(start) {
		return apperr.Validation("end_date must not be before start_date")
	}
	return nil
}

func validateItem(item PlanItem) error {
	if _, err := newItemData(item.Type); err != nil {
		return apperr.Validation(err.Error())
	}
	if item.Data != nil && item.Data.Kind() != item.Type {
		return apperr.Validation(fmt.Sprintf("payload of kind %s does not match item type %s", item.Data.Kind(), item.Type))
	}
	if strings.TrimSpace(item.Content) == "" {
		return apperr.Validation("item content is required")
	}
	return nil
}

func outOfRange(d dates.Date, w *Week) error {
	return apperr.Validation(fmt.Sprintf("date %s is outside the stage range %s..%s", d, w.StartDate, w.EndDate))
}
