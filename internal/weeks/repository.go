package weeks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"audit-portal/portal-backend/pkg/apperr"
)

// ErrStaleWrite means the week changed since the caller read it
var ErrStaleWrite = fmt.Errorf("%w: week was modified by someone else, reload and retry", apperr.ErrConflict)

// ErrWeekNotFound is returned when no week has the requested id
var ErrWeekNotFound = apperr.NotFound("week not found")

// Repository defines the interface for week data access
type Repository interface {
	CreateWeek(ctx context.Context, week *Week) error
	GetWeek(ctx context.Context, id uuid.UUID) (*Week, error)
	ListWeeks(ctx context.Context, projectID uuid.UUID) ([]*Week, error)
	// UpdateWeek writes every mutable column when the stored version equals
	// expectedVersion and bumps week.Version on success.
	UpdateWeek(ctx context.Context, week *Week, expectedVersion int) error
	DeleteWeek(ctx context.Context, id uuid.UUID) error
	// IncrementEventCount moves one item's event count by delta in place,
	// leaving the version alone. It reports false when the item is no longer
	// where week.Plan has it; week.Plan is refreshed on success.
	IncrementEventCount(ctx context.Context, week *Week, taskID string, delta int) (bool, error)
	// WriteEventCounts stores week.Plan when the version still equals
	// expectedVersion, without bumping it.
	WriteEventCounts(ctx context.Context, week *Week, expectedVersion int) error
	GetEventCounts(ctx context.Context, projectID uuid.UUID) (map[string]int, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const weekColumns = `id, project_id, user_id, title, description, start_date, end_date,
	status, rejection_comment, plan, version, created_at, updated_at`

// InsertWeek stores a new week through any executor, so callers can place it
// inside their own transaction.
func InsertWeek(ctx context.Context, exec sqlx.ExtContext, week *Week) error {
	query := `
		INSERT INTO weeks (
			id, project_id, user_id, title, description, start_date, end_date,
			status, rejection_comment, plan, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING created_at, updated_at
	`
	row := exec.QueryRowxContext(ctx, query,
		week.ID, week.ProjectID, week.UserID, week.Title, week.Description,
		week.StartDate, week.EndDate, week.Status, week.RejectionComment,
		week.Plan, week.Version,
	)
	if err := row.Scan(&week.CreatedAt, &week.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create week: %w", err)
	}
	return nil
}

// DeleteProjectWeeks removes every week of a project through exec
func DeleteProjectWeeks(ctx context.Context, exec sqlx.ExtContext, projectID uuid.UUID) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM weeks WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("failed to delete project weeks: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateWeek(ctx context.Context, week *Week) error {
	return InsertWeek(ctx, r.db, week)
}

func (r *PostgresRepository) GetWeek(ctx context.Context, id uuid.UUID) (*Week, error) {
	var week Week
	err := r.db.GetContext(ctx, &week, `SELECT `+weekColumns+` FROM weeks WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWeekNotFound
		}
		return nil, fmt.Errorf("failed to get week: %w", err)
	}
	return &week, nil
}

func (r *PostgresRepository) ListWeeks(ctx context.Context, projectID uuid.UUID) ([]*Week, error) {
	weeks := []*Week{}
	err := r.db.SelectContext(ctx, &weeks,
		`SELECT `+weekColumns+` FROM weeks WHERE project_id = $1 ORDER BY start_date ASC, created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list weeks: %w", err)
	}
	return weeks, nil
}

func (r *PostgresRepository) UpdateWeek(ctx context.Context, week *Week, expectedVersion int) error {
	query := `
		UPDATE weeks SET
			title = $1, description = $2, start_date = $3, end_date = $4,
			status = $5, rejection_comment = $6, plan = $7,
			version = version + 1, updated_at = NOW()
		WHERE id = $8 AND version = $9
		RETURNING version, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		week.Title, week.Description, week.StartDate, week.EndDate,
		week.Status, week.RejectionComment, week.Plan,
		week.ID, expectedVersion,
	).Scan(&week.Version, &week.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to update week: %w", err)
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM weeks WHERE id = $1)`, week.ID); err != nil {
		return fmt.Errorf("failed to check week: %w", err)
	}
	if !exists {
		return ErrWeekNotFound
	}
	return ErrStaleWrite
}

func (r *PostgresRepository) DeleteWeek(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM weeks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete week: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrWeekNotFound
	}
	return nil
}

func (r *PostgresRepository) IncrementEventCount(ctx context.Context, week *Week, taskID string, delta int) (bool, error) {
	day, index, ok := week.Plan.ItemPosition(taskID)
	if !ok {
		return false, nil
	}
	pos := fmt.Sprint(index)
	query := `
		UPDATE weeks SET
			plan = jsonb_set(plan, $2::text[],
				to_jsonb(GREATEST(COALESCE((plan #>> $2::text[])::int, 0) + $3, 0))),
			updated_at = NOW()
		WHERE id = $1 AND plan #>> $4::text[] = $5
		RETURNING plan, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		week.ID,
		pq.Array([]string{day, "tasks", pos, "event_count"}),
		delta,
		pq.Array([]string{day, "tasks", pos, "id"}),
		taskID,
	).Scan(&week.Plan, &week.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to adjust event count: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) WriteEventCounts(ctx context.Context, week *Week, expectedVersion int) error {
	err := r.db.QueryRowxContext(ctx,
		`UPDATE weeks SET plan = $1, updated_at = NOW() WHERE id = $2 AND version = $3 RETURNING updated_at`,
		week.Plan, week.ID, expectedVersion,
	).Scan(&week.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStaleWrite
	}
	if err != nil {
		return fmt.Errorf("failed to write event counts: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetEventCounts(ctx context.Context, projectID uuid.UUID) (map[string]int, error) {
	var rows []struct {
		TaskID string `db:"task_id"`
		Count  int    `db:"event_count"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT task_id, event_count FROM get_event_counts_for_project($1)`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate event counts: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.TaskID] = row.Count
	}
	return counts, nil
}
