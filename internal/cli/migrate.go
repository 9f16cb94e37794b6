package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"audit-portal/portal-backend/migrations"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Long: `Apply every goose migration that has not run yet, in version order.
Migrations come from --dir, then database.migrations_path when it exists,
then the copy built into the binary.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), rootOpts, dir, dryRun, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "migrations directory (default database.migrations_path)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")

	return cmd
}

func runMigrate(ctx context.Context, opts *RootOptions, dir string, dryRun bool, out io.Writer) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	fsys, source := MigrationSource(dir, cfg.Database.MigrationsPath)

	db, err := OpenDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := NewMigrator(db.DB, fsys)
	if err != nil {
		return err
	}
	logger.Info("Running migrations", zap.String("source", source), zap.Bool("dry_run", dryRun))

	if dryRun {
		return printPending(ctx, provider, out)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No pending migrations")
		return nil
	}
	for _, r := range results {
		logger.Info("Migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration))
		fmt.Fprintf(out, "applied %s\n", filepath.Base(r.Source.Path))
	}
	return nil
}

// MigrationSource picks where migrations are read from: dir when set, the
// configured path when it exists on disk, otherwise the embedded copy.
func MigrationSource(dir, configured string) (fs.FS, string) {
	if dir != "" {
		return os.DirFS(dir), dir
	}
	if configured != "" {
		if info, err := os.Stat(configured); err == nil && info.IsDir() {
			return os.DirFS(configured), configured
		}
	}
	return migrations.FS, "embedded"
}

// NewMigrator creates a goose provider for the PostgreSQL schema in fsys
func NewMigrator(db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return provider, nil
}

func printPending(ctx context.Context, provider *goose.Provider, out io.Writer) error {
	statuses, err := provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	pending := 0
	for _, st := range statuses {
		if st.State != goose.StatePending {
			continue
		}
		pending++
		fmt.Fprintf(out, "pending %s\n", filepath.Base(st.Source.Path))
	}
	if pending == 0 {
		fmt.Fprintln(out, "No pending migrations")
	}
	return nil
}
