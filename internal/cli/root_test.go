package cli

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/auth"
	"audit-portal/portal-backend/internal/config"
	"audit-portal/portal-backend/migrations"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "audit-portal", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "migrate", "resync-counts", "token"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))

	migrate, _, err := cmd.Find([]string{"migrate"})
	require.NoError(t, err)
	assert.NotNil(t, migrate.Flags().Lookup("dry-run"))

	resync, _, err := cmd.Find([]string{"resync-counts"})
	require.NoError(t, err)
	assert.Equal(t, "p", resync.Flags().Lookup("project").Shorthand)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	id := uuid.New()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--user", id.String(), "--email", "auditor@example.com"})
	require.NoError(t, cmd.Execute())

	user, err := auth.NewVerifier("cli-secret", "").Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "auditor@example.com", user.Email)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})
	assert.ErrorContains(t, cmd.Execute(), "jwt_secret is required")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = NewLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

// lazyDB opens a handle that never dials; goose only needs it to run
func lazyDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", "postgres://localhost:1/none?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewMigratorOrdersSources(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_add_index.sql", "001_init.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- +goose Up\nSELECT 1;\n"), 0o600))
	}

	provider, err := NewMigrator(lazyDB(t), os.DirFS(dir))
	require.NoError(t, err)

	sources := provider.ListSources()
	require.Len(t, sources, 2)
	assert.Equal(t, int64(1), sources[0].Version)
	assert.Equal(t, "001_init.sql", filepath.Base(sources[0].Path))
	assert.Equal(t, int64(2), sources[1].Version)
}

func TestNewMigratorErrors(t *testing.T) {
	_, err := NewMigrator(lazyDB(t), os.DirFS(t.TempDir()))
	assert.ErrorIs(t, err, goose.ErrNoMigrations)

	dir := t.TempDir()
	for _, name := range []string{"001_a.sql", "1_b.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- +goose Up\nSELECT 1;\n"), 0o600))
	}
	_, err = NewMigrator(lazyDB(t), os.DirFS(dir))
	assert.Error(t, err, "duplicate versions")
}

func TestMigrationSource(t *testing.T) {
	dir := t.TempDir()

	_, source := MigrationSource(dir, "elsewhere")
	assert.Equal(t, dir, source)

	_, source = MigrationSource("", dir)
	assert.Equal(t, dir, source)

	fsys, source := MigrationSource("", filepath.Join(dir, "missing"))
	assert.Equal(t, "embedded", source)
	_, err := fs.Stat(fsys, "001_init.sql")
	assert.NoError(t, err)
}

func TestShippedMigrations(t *testing.T) {
	provider, err := NewMigrator(lazyDB(t), migrations.FS)
	require.NoError(t, err)
	sources := provider.ListSources()
	require.NotEmpty(t, sources)
	assert.Equal(t, int64(1), sources[0].Version)

	script, err := fs.ReadFile(migrations.FS, "001_init.sql")
	require.NoError(t, err)
	for _, want := range []string{
		"-- +goose Up",
		"-- +goose StatementBegin",
		"-- +goose Down",
		"audit_notify()",
		"get_event_counts_for_project",
		"pg_notify('audit_changes'",
	} {
		assert.Contains(t, string(script), want)
	}
}

// =====================================================
// Resync
// =====================================================

type MockLister struct {
	mock.Mock
}

func (m *MockLister) ListProjectIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockResyncer struct {
	mock.Mock
}

func (m *MockResyncer) ResyncEventCounts(ctx context.Context, projectID uuid.UUID) (int, error) {
	args := m.Called(ctx, projectID)
	return args.Int(0), args.Error(1)
}

func TestResync_AllProjects(t *testing.T) {
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	lister := new(MockLister)
	lister.On("ListProjectIDs", ctx).Return([]uuid.UUID{a, b}, nil)
	resyncer := new(MockResyncer)
	resyncer.On("ResyncEventCounts", ctx, a).Return(2, nil)
	resyncer.On("ResyncEventCounts", ctx, b).Return(0, errors.New("boom"))

	var out bytes.Buffer
	err := Resync(ctx, lister, resyncer, nil, &out, zap.NewNop())

	assert.ErrorContains(t, err, "1 of 2 projects")
	assert.Contains(t, out.String(), a.String()+"\t2 weeks updated")
	assert.Contains(t, out.String(), b.String()+"\tfailed: boom")
	resyncer.AssertExpectations(t)
}

func TestResync_SelectedProjects(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	lister := new(MockLister)
	resyncer := new(MockResyncer)
	resyncer.On("ResyncEventCounts", ctx, id).Return(1, nil)

	var out bytes.Buffer
	require.NoError(t, Resync(ctx, lister, resyncer, []uuid.UUID{id}, &out, zap.NewNop()))

	lister.AssertNotCalled(t, "ListProjectIDs", mock.Anything)
	assert.Equal(t, id.String()+"\t1 weeks updated\n", out.String())
}

func TestParseIDs(t *testing.T) {
	id := uuid.New()
	ids, err := parseIDs([]string{id.String()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)

	_, err = parseIDs([]string{"nope"})
	assert.ErrorContains(t, err, "invalid project id")
}
