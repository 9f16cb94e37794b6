package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/cli"
	"audit-portal/portal-backend/internal/config"
	"audit-portal/portal-backend/internal/projects"
	"audit-portal/portal-backend/internal/weeks"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a JSON or YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := cli.NewLogger(cfg.Logging)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := cli.OpenDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerConfig := DefaultResyncWorkerConfig()
	if cfg.Worker.ResyncSchedule != "" {
		workerConfig.Schedule = cfg.Worker.ResyncSchedule
	}
	workerConfig.MaxConcurrent = cfg.Worker.Concurrency

	// counts are written straight to the weeks table; the database trigger
	// tells running API servers about the change
	service := weeks.NewService(weeks.NewPostgresRepository(db), nil, nil, nil, logger)
	worker := NewResyncWorker(projects.NewPostgresRepository(db), service, logger, workerConfig)

	if err := worker.Start(ctx); err != nil {
		logger.Fatal("Resync worker failed", zap.Error(err))
	}
	logger.Info("Worker exiting")
}
