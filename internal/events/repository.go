package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"audit-portal/portal-backend/pkg/apperr"
)

var ErrEventNotFound = apperr.NotFound("event not found")

// Repository defines the interface for event data access
type Repository interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	ListByTask(ctx context.Context, taskID string) ([]*Event, error)
	ListByWeek(ctx context.Context, weekID uuid.UUID) ([]*Event, error)
	DeleteEvent(ctx context.Context, id uuid.UUID) error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// eventRow is an event joined with its parent
type eventRow struct {
	Event
	ParentContent     sql.NullString `db:"parent_content"`
	ParentAuthorEmail sql.NullString `db:"parent_author_email"`
}

func (r eventRow) toEvent() *Event {
	e := r.Event
	if r.ParentContent.Valid {
		e.Parent = &ParentRef{
			Content:     r.ParentContent.String,
			AuthorEmail: r.ParentAuthorEmail.String,
		}
	}
	return &e
}

const selectEvents = `
	SELECT e.id, e.created_at, e.project_id, e.week_id, e.task_id, e.user_id,
		   e.author_email, e.type, e.content, e.data, e.parent_event_id,
		   p.content AS parent_content, p.author_email AS parent_author_email
	FROM events e
	LEFT JOIN events p ON p.id = e.parent_event_id
`

func (r *PostgresRepository) CreateEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (
			project_id, week_id, task_id, user_id, author_email,
			type, content, data, parent_event_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		event.ProjectID, event.WeekID, event.TaskID, event.UserID, event.AuthorEmail,
		event.Type, event.Content, event.Data, event.ParentEventID,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	var row eventRow
	if err := r.db.GetContext(ctx, &row, selectEvents+` WHERE e.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return row.toEvent(), nil
}

func (r *PostgresRepository) ListByTask(ctx context.Context, taskID string) ([]*Event, error) {
	return r.list(ctx, selectEvents+` WHERE e.task_id = $1 ORDER BY e.created_at ASC`, taskID)
}

func (r *PostgresRepository) ListByWeek(ctx context.Context, weekID uuid.UUID) ([]*Event, error) {
	return r.list(ctx, selectEvents+` WHERE e.week_id = $1 ORDER BY e.created_at ASC`, weekID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg interface{}) ([]*Event, error) {
	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	out := make([]*Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEvent())
	}
	return out, nil
}

func (r *PostgresRepository) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}
