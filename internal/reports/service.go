package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/ai"
	"audit-portal/portal-backend/internal/events"
	"audit-portal/portal-backend/internal/projects"
	"audit-portal/portal-backend/internal/reports/export"
	"audit-portal/portal-backend/internal/weeks"
)

// WeekSource loads a stage
type WeekSource interface {
	GetWeek(ctx context.Context, id uuid.UUID) (*weeks.Week, error)
}

// ProjectSource loads a project
type ProjectSource interface {
	GetProject(ctx context.Context, id uuid.UUID) (*projects.Project, error)
}

// EventSource lists the events of a stage
type EventSource interface {
	ListByWeek(ctx context.Context, weekID uuid.UUID) ([]*events.Event, error)
}

// Writer drafts the report text
type Writer interface {
	GenerateReport(ctx context.Context, in ai.ReportInput) (string, error)
}

// Service builds stage reports and exports
type Service struct {
	weeks    WeekSource
	projects ProjectSource
	events   EventSource
	writer   Writer
	cache    *ReportCache
	pdf      export.PDFOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a report service. cache may be nil.
func NewService(weekSource WeekSource, projectSource ProjectSource, eventSource EventSource, writer Writer, cache *ReportCache, logger *zap.Logger) *Service {
	return &Service{
		weeks:    weekSource,
		projects: projectSource,
		events:   eventSource,
		writer:   writer,
		cache:    cache,
		pdf:      export.DefaultPDFOptions(),
		logger:   logger,
		now:      time.Now,
	}
}

type stage struct {
	week    *weeks.Week
	project *projects.Project
	events  []*events.Event
}

func (s *Service) load(ctx context.Context, weekID uuid.UUID) (*stage, error) {
	week, err := s.weeks.GetWeek(ctx, weekID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetProject(ctx, week.ProjectID)
	if err != nil {
		return nil, err
	}
	evs, err := s.events.ListByWeek(ctx, weekID)
	if err != nil {
		return nil, err
	}
	return &stage{week: week, project: project, events: evs}, nil
}

// WeekReport returns the AI report for a stage. A cached report is reused
// while the stage version and its event count are unchanged, unless refresh
// is set.
func (s *Service) WeekReport(ctx context.Context, weekID uuid.UUID, refresh bool) (*Report, error) {
	st, err := s.load(ctx, weekID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:%d:%d", weekID, st.week.Version, len(st.events))
	if s.cache != nil && !refresh {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
	}

	description := ""
	if st.project.Description != nil {
		description = *st.project.Description
	}
	text, err := s.writer.GenerateReport(ctx, ai.ReportInput{
		ProjectName:        st.project.Name,
		ProjectDescription: description,
		Week:               st.week,
		Events:             st.events,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		WeekID:      weekID,
		WeekVersion: st.week.Version,
		ProjectName: st.project.Name,
		WeekTitle:   st.week.Title,
		Markdown:    text,
		Stats:       st.week.Plan.Stats(),
		EventCount:  len(st.events),
		GeneratedAt: s.now().UTC(),
	}
	if s.cache != nil {
		s.cache.Set(key, report)
	}

	s.logger.Info("Week report generated",
		zap.String("week_id", weekID.String()),
		zap.Int("events", len(st.events)),
	)
	return report, nil
}

// WriteReportPDF renders the stage report as PDF
func (s *Service) WriteReportPDF(ctx context.Context, w io.Writer, weekID uuid.UUID, refresh bool) error {
	report, err := s.WeekReport(ctx, weekID, refresh)
	if err != nil {
		return err
	}
	return export.WriteMarkdownPDF(w, export.Document{
		Title:       report.WeekTitle,
		Subtitle:    report.ProjectName,
		Markdown:    report.Markdown,
		GeneratedAt: report.GeneratedAt,
	}, s.pdf)
}

// WritePlanWorkbook exports the stage plan and its events as xlsx
func (s *Service) WritePlanWorkbook(ctx context.Context, w io.Writer, weekID uuid.UUID) error {
	st, err := s.load(ctx, weekID)
	if err != nil {
		return err
	}
	return export.WritePlanWorkbook(w, st.week, st.events)
}

// WriteEventsCSV exports the stage events as CSV
func (s *Service) WriteEventsCSV(ctx context.Context, w io.Writer, weekID uuid.UUID) error {
	if _, err := s.weeks.GetWeek(ctx, weekID); err != nil {
		return err
	}
	evs, err := s.events.ListByWeek(ctx, weekID)
	if err != nil {
		return err
	}
	return export.WriteEventsCSV(w, evs)
}

// CacheStats returns report cache statistics
func (s *Service) CacheStats() CacheStats {
	if s.cache == nil {
		return CacheStats{}
	}
	return s.cache.Stats()
}
