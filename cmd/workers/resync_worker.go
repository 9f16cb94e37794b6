package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ProjectLister lists every project id
type ProjectLister interface {
	ListProjectIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CountResyncer recomputes the event counts of one project
type CountResyncer interface {
	ResyncEventCounts(ctx context.Context, projectID uuid.UUID) (int, error)
}

// ResyncWorker repairs plan item event counts on a cron schedule
type ResyncWorker struct {
	projects ProjectLister
	counts   CountResyncer
	logger   *zap.Logger
	config   ResyncWorkerConfig
	cron     *cron.Cron
}

// ResyncWorkerConfig configuration for the resync worker
type ResyncWorkerConfig struct {
	// Schedule is a cron spec with a leading seconds field
	Schedule       string
	MaxConcurrent  int
	ProjectTimeout time.Duration
}

// DefaultResyncWorkerConfig returns default configuration
func DefaultResyncWorkerConfig() ResyncWorkerConfig {
	return ResyncWorkerConfig{
		Schedule:       "0 */5 * * * *",
		MaxConcurrent:  4,
		ProjectTimeout: 30 * time.Second,
	}
}

// RunResult summarizes one pass over all projects
type RunResult struct {
	Projects     int
	WeeksUpdated int
	Failed       int
}

// NewResyncWorker creates a new resync worker
func NewResyncWorker(projects ProjectLister, counts CountResyncer, logger *zap.Logger, config ResyncWorkerConfig) *ResyncWorker {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	if config.ProjectTimeout <= 0 {
		config.ProjectTimeout = DefaultResyncWorkerConfig().ProjectTimeout
	}
	return &ResyncWorker{
		projects: projects,
		counts:   counts,
		logger:   logger,
		config:   config,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger.Sugar()})),
		),
	}
}

// Start runs one pass immediately, then on every tick of the schedule until
// ctx is done. A pass still running when the next tick fires is not doubled.
func (w *ResyncWorker) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.config.Schedule, func() { w.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", w.config.Schedule, err)
	}

	w.logger.Info("Starting resync worker",
		zap.String("schedule", w.config.Schedule),
		zap.Int("max_concurrent", w.config.MaxConcurrent))

	w.RunOnce(ctx)
	w.cron.Start()

	<-ctx.Done()
	w.logger.Info("Resync worker shutting down")
	<-w.cron.Stop().Done()
	return nil
}

// RunOnce resyncs every project with bounded concurrency
func (w *ResyncWorker) RunOnce(ctx context.Context) RunResult {
	ids, err := w.projects.ListProjectIDs(ctx)
	if err != nil {
		w.logger.Error("Failed to list projects", zap.Error(err))
		return RunResult{}
	}

	start := time.Now()
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = RunResult{Projects: len(ids)}
	)

	// Process with concurrency limit
	sem := make(chan struct{}, w.config.MaxConcurrent)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)

		go func(projectID uuid.UUID) {
			defer func() {
				<-sem
				wg.Done()
			}()

			updated, err := w.resyncProject(ctx, projectID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				return
			}
			result.WeeksUpdated += updated
		}(id)
	}
	wg.Wait()

	w.logger.Info("Event count resync finished",
		zap.Int("projects", result.Projects),
		zap.Int("weeks_updated", result.WeeksUpdated),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)))
	return result
}

func (w *ResyncWorker) resyncProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.config.ProjectTimeout)
	defer cancel()

	updated, err := w.counts.ResyncEventCounts(ctx, projectID)
	if err != nil {
		w.logger.Error("Failed to resync project",
			zap.String("project_id", projectID.String()),
			zap.Error(err))
		return 0, err
	}
	if updated > 0 {
		w.logger.Debug("Repaired event counts",
			zap.String("project_id", projectID.String()),
			zap.Int("weeks_updated", updated))
	}
	return updated, nil
}

// cronLogger routes cron's own messages to zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
