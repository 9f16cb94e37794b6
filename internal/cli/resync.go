package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/projects"
	"audit-portal/portal-backend/internal/weeks"
)

// ProjectLister lists the projects a resync covers
type ProjectLister interface {
	ListProjectIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CountResyncer recomputes the event counts of one project
type CountResyncer interface {
	ResyncEventCounts(ctx context.Context, projectID uuid.UUID) (int, error)
}

// NewResyncCommand creates the resync-counts command.
func NewResyncCommand(rootOpts *RootOptions) *cobra.Command {
	var projectIDs []string

	cmd := &cobra.Command{
		Use:   "resync-counts",
		Short: "Recompute plan item event counts from the events table",
		Long: `Recompute the event_count of every plan item from the events table once.
Without --project every project is resynced.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResync(cmd.Context(), rootOpts, projectIDs, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVarP(&projectIDs, "project", "p", nil, "project id to resync (repeatable)")

	return cmd
}

func runResync(ctx context.Context, opts *RootOptions, rawIDs []string, out io.Writer) error {
	ids, err := parseIDs(rawIDs)
	if err != nil {
		return err
	}

	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := OpenDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	service := weeks.NewService(weeks.NewPostgresRepository(db), nil, nil, nil, logger)
	return Resync(ctx, projects.NewPostgresRepository(db), service, ids, out, logger)
}

// Resync runs the count repair for ids, or for every project when ids is
// empty. A failing project is reported and the rest still run.
func Resync(ctx context.Context, lister ProjectLister, resyncer CountResyncer, ids []uuid.UUID, out io.Writer, logger *zap.Logger) error {
	if len(ids) == 0 {
		var err error
		if ids, err = lister.ListProjectIDs(ctx); err != nil {
			return err
		}
	}

	failed := 0
	for _, id := range ids {
		updated, err := resyncer.ResyncEventCounts(ctx, id)
		if err != nil {
			failed++
			logger.Error("Failed to resync event counts", zap.String("project_id", id.String()), zap.Error(err))
			fmt.Fprintf(out, "%s\tfailed: %v\n", id, err)
			continue
		}
		fmt.Fprintf(out, "%s\t%d weeks updated\n", id, updated)
	}
	if failed > 0 {
		return fmt.Errorf("resync failed for %d of %d projects", failed, len(ids))
	}
	return nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid project id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
