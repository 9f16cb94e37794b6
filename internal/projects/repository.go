package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"audit-portal/portal-backend/internal/weeks"
	"audit-portal/portal-backend/pkg/apperr"
)

// ErrProjectNotFound is returned when no project has the requested id
var ErrProjectNotFound = apperr.NotFound("project not found")

// Repository defines the interface for project data access
type Repository interface {
	// CreateProject stores the project and its stages atomically
	CreateProject(ctx context.Context, project *Project, stages []*weeks.Week) error
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	UpdateProject(ctx context.Context, project *Project) error
	DeleteProject(ctx context.Context, id uuid.UUID) error
	// ReplaceWeeks swaps every stage of a project in one transaction
	ReplaceWeeks(ctx context.Context, projectID uuid.UUID, stages []*weeks.Week) error
	// ListProjectIDs returns every project id, for the resync worker
	ListProjectIDs(ctx context.Context) ([]uuid.UUID, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const projectColumns = `id, user_id, name, description, start_date, end_date,
	approval_period, created_at, updated_at`

func (r *PostgresRepository) CreateProject(ctx context.Context, project *Project, stages []*weeks.Week) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO projects (
				id, user_id, name, description, start_date, end_date, approval_period
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7
			)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			project.ID, project.UserID, project.Name, project.Description,
			project.StartDate, project.EndDate, project.ApprovalPeriod,
		).Scan(&project.CreatedAt, &project.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}

		for _, w := range stages {
			if err := weeks.InsertWeek(ctx, tx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepository) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	var project Project
	err := r.db.GetContext(ctx, &project, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

func (r *PostgresRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	projects := []*Project{}
	if err := r.db.SelectContext(ctx, &projects, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (r *PostgresRepository) UpdateProject(ctx context.Context, project *Project) error {
	query := `
		UPDATE projects SET
			name = $1, description = $2, approval_period = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		project.Name, project.Description, project.ApprovalPeriod, project.ID,
	).Scan(&project.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// DeleteProject removes the project; weeks and events go with it through
// ON DELETE CASCADE.
func (r *PostgresRepository) DeleteProject(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (r *PostgresRepository) ReplaceWeeks(ctx context.Context, projectID uuid.UUID, stages []*weeks.Week) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := weeks.DeleteProjectWeeks(ctx, tx, projectID); err != nil {
			return err
		}
		for _, w := range stages {
			if err := weeks.InsertWeek(ctx, tx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepository) ListProjectIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM projects ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("failed to list project ids: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
