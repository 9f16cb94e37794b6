package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	v1 "audit-portal/portal-backend/api/v1"
	"audit-portal/portal-backend/internal/ai"
	"audit-portal/portal-backend/internal/realtime"
	"audit-portal/portal-backend/internal/search"
	"audit-portal/portal-backend/pkg/security"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API with the realtime stream. Database changes made by other
processes are picked up through LISTEN/NOTIFY.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		return errors.New("security.jwt_secret is required")
	}
	if !strings.EqualFold(cfg.Logging.Format, "console") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to database",
		zap.String("host", cfg.Database.Host),
		zap.String("db_name", cfg.Database.DBName))
	db, err := OpenDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	gdb, err := OpenGorm(db)
	if err != nil {
		return err
	}

	store, err := NewObjectStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	generator, err := ai.NewGenerator(ctx, cfg.AI, logger)
	if err != nil {
		return err
	}
	box, err := security.NewBox(cfg.Security.SecretboxKey)
	if err != nil {
		return err
	}
	if box == nil {
		logger.Warn("Secretbox key not set; bot tokens are stored in plain text")
	}
	senders, err := NewSenders(ctx, cfg)
	if err != nil {
		return err
	}

	indexer, err := search.NewIndexer(cfg.Search, logger)
	if err != nil {
		return err
	}
	if err := indexer.EnsureIndex(ctx); err != nil {
		// search stays degraded, the rest of the API works
		logger.Warn("Failed to prepare search index", zap.Error(err))
	}

	api := v1.SetupAPI(v1.Dependencies{
		DB:        db,
		Gorm:      gdb,
		Store:     store,
		Generator: generator,
		Indexer:   indexer,
		Senders:   senders,
		Box:       box,
		Config:    cfg,
		Logger:    logger,
	})
	defer api.Close()

	listener := realtime.NewPGListener(cfg.Database.GetDatabaseURL(), api.Broker, logger)
	go func() {
		if err := listener.Run(ctx); err != nil {
			logger.Error("Database listener stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      api.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	logger.Info("Server started", zap.String("addr", srv.Addr))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	}

	// Graceful Shutdown
	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting")
	return nil
}
