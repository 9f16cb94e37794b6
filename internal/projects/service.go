package projects

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/ai"
	"audit-portal/portal-backend/internal/realtime"
	"audit-portal/portal-backend/internal/weeks"
	"audit-portal/portal-backend/pkg/apperr"
	"audit-portal/portal-backend/pkg/workflows"
)

// PlanGenerator drafts the stages of a project
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, req ai.PlanRequest) ([]ai.GeneratedWeek, error)
}

// WeekLister returns the stages of a project in date order
type WeekLister interface {
	ListWeeks(ctx context.Context, projectID uuid.UUID) ([]*weeks.Week, error)
}

// Service provides project business logic
type Service struct {
	repo          Repository
	weeks         WeekLister
	planner       PlanGenerator
	publisher     realtime.Publisher
	publicBaseURL string
	logger        *zap.Logger
}

// NewService creates a new project service
func NewService(repo Repository, weekLister WeekLister, planner PlanGenerator, publisher realtime.Publisher, publicBaseURL string, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	return &Service{
		repo:          repo,
		weeks:         weekLister,
		planner:       planner,
		publisher:     publisher,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// CreateProject stores a project. With GeneratePlan the AI is asked first and
// nothing is written unless it succeeds.
func (s *Service) CreateProject(ctx context.Context, userID uuid.UUID, req *CreateProjectRequest) (*ProjectDetail, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if req.StartDate.IsZero() {
		return nil, apperr.Validation("start_date is required")
	}
	if !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
		return nil, apperr.Validation("end_date must not be before start_date")
	}
	period := req.ApprovalPeriod
	if period == "" {
		period = PeriodWeekly
	}
	if !period.Valid() {
		return nil, apperr.Validation("approval_period must be weekly or monthly")
	}

	project := &Project{
		ID:             uuid.New(),
		UserID:         userID,
		Name:           name,
		Description:    req.Description,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		ApprovalPeriod: period,
	}

	var stages []*weeks.Week
	if req.GeneratePlan {
		var err error
		if stages, err = s.draftStages(ctx, project); err != nil {
			return nil, err
		}
	}

	if err := s.repo.CreateProject(ctx, project, stages); err != nil {
		return nil, err
	}

	s.publish(realtime.Insert, project)
	s.logger.Info("Project created",
		zap.String("project_id", project.ID.String()),
		zap.Bool("generated_plan", req.GeneratePlan),
		zap.Int("weeks", len(stages)),
	)
	if stages == nil {
		stages = []*weeks.Week{}
	}
	return &ProjectDetail{Project: project, Weeks: stages}, nil
}

// draftStages turns an AI plan into draft weeks owned by the project's auditor
func (s *Service) draftStages(ctx context.Context, project *Project) ([]*weeks.Week, error) {
	description := ""
	if project.Description != nil {
		description = *project.Description
	}
	generated, err := s.planner.GeneratePlan(ctx, ai.PlanRequest{
		Name:           project.Name,
		Description:    description,
		StartDate:      project.StartDate,
		EndDate:        project.EndDate,
		ApprovalPeriod: string(project.ApprovalPeriod),
	})
	if err != nil {
		return nil, err
	}

	stages := make([]*weeks.Week, 0, len(generated))
	for _, g := range generated {
		stages = append(stages, &weeks.Week{
			ID:        uuid.New(),
			ProjectID: project.ID,
			UserID:    project.UserID,
			Title:     g.Title,
			StartDate: g.StartDate,
			EndDate:   g.EndDate,
			Status:    workflows.StatusDraft,
			// days the model placed outside the stage are dropped
			Plan:    g.Plan.MergeRange(g.StartDate, g.EndDate),
			Version: 1,
		})
	}
	return stages, nil
}

func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	return s.repo.GetProject(ctx, id)
}

// GetProjectDetail returns the project with its stages
func (s *Service) GetProjectDetail(ctx context.Context, id uuid.UUID) (*ProjectDetail, error) {
	project, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	stages, err := s.weeks.ListWeeks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProjectDetail{Project: project, Weeks: stages}, nil
}

// ListProjects returns every project, newest first
func (s *Service) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.repo.ListProjects(ctx)
}

// UpdateProject edits project metadata; owner only
func (s *Service) UpdateProject(ctx context.Context, userID, id uuid.UUID, req *UpdateProjectRequest) (*Project, error) {
	project, err := s.ownedProject(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("name is required")
		}
		project.Name = name
	}
	if req.Description != nil {
		project.Description = req.Description
	}
	if req.ApprovalPeriod != nil {
		if !req.ApprovalPeriod.Valid() {
			return nil, apperr.Validation("approval_period must be weekly or monthly")
		}
		project.ApprovalPeriod = *req.ApprovalPeriod
	}

	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	s.publish(realtime.Update, project)
	return project, nil
}

// DeleteProject removes a project and, by cascade, its stages; owner only
func (s *Service) DeleteProject(ctx context.Context, userID, id uuid.UUID) error {
	project, err := s.ownedProject(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.publish(realtime.Delete, project)
	s.logger.Info("Project deleted", zap.String("project_id", id.String()))
	return nil
}

// RegeneratePlan replaces every stage with a fresh AI draft. The old stages
// are kept when generation or the write fails.
func (s *Service) RegeneratePlan(ctx context.Context, userID, id uuid.UUID) (*ProjectDetail, error) {
	project, err := s.ownedProject(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	stages, err := s.draftStages(ctx, project)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceWeeks(ctx, id, stages); err != nil {
		return nil, err
	}

	s.publish(realtime.Update, project)
	s.logger.Info("Project plan regenerated",
		zap.String("project_id", id.String()),
		zap.Int("weeks", len(stages)),
	)
	return &ProjectDetail{Project: project, Weeks: stages}, nil
}

// ShareLink returns the portal URL that opens the project
func (s *Service) ShareLink(ctx context.Context, id uuid.UUID) (*ShareLink, error) {
	if _, err := s.repo.GetProject(ctx, id); err != nil {
		return nil, err
	}
	return &ShareLink{ProjectID: id, URL: s.publicBaseURL + "/#/" + id.String()}, nil
}

// ProjectOwner implements weeks.ProjectOwnerLookup
func (s *Service) ProjectOwner(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return uuid.Nil, err
	}
	return project.UserID, nil
}

func (s *Service) ownedProject(ctx context.Context, userID, id uuid.UUID) (*Project, error) {
	project, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if !project.IsOwner(userID) {
		return nil, apperr.Forbidden("only the project auditor can change the project")
	}
	return project, nil
}

func (s *Service) publish(typ realtime.ChangeType, project *Project) {
	s.publisher.Publish(realtime.LocalChange(realtime.TableProjects, typ, project.ID.String(),
		realtime.Scope{ProjectID: project.ID.String()}, project))
}
