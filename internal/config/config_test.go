package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Std())
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "audit-files", cfg.Storage.Bucket)
	assert.Equal(t, "0 */5 * * * *", cfg.Worker.ResyncSchedule)
	assert.Equal(t, "audit-events", cfg.Search.Index)
	assert.Empty(t, cfg.Search.Addresses)
}

func TestLoadConfig_JSONFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"server": {"port": 9090, "shutdown_timeout": "12s"},
		"database": {"db_name": "audits"},
		"storage": {"driver": "s3", "bucket": "evidence", "use_path_style": true},
		"reports": {"cache_ttl": "1m"}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 12*time.Second, cfg.Server.ShutdownTimeout.Std())
	assert.Equal(t, "audits", cfg.Database.DBName)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, StorageS3, cfg.Storage.Driver)
	assert.Equal(t, "evidence", cfg.Storage.Bucket)
	assert.True(t, cfg.Storage.UsePathStyle)
	assert.Equal(t, time.Minute, cfg.Reports.CacheTTL.Std())
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 7070
  allowed_origins: ["https://portal.example.com"]
ai:
  provider: openai
  model: gpt-4o-mini
storage:
  driver: s3
  bucket: yaml-bucket
  region: eu-central-1
search:
  addresses: ["http://es:9200"]
worker:
  concurrency: 8
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"https://portal.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, "yaml-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "eu-central-1", cfg.Storage.Region)
	assert.Equal(t, []string{"http://es:9200"}, cfg.Search.Addresses)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"server": {"port": 9090}, "security": {"jwt_secret": "file"}}`)
	t.Setenv("SERVER_PORT", "6060")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("ELASTICSEARCH_URL", "http://a:9200, http://b:9200")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("DATABASE_PASSWORD", "pw")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Security.JWTSecret)
	assert.Equal(t, "gk", cfg.AI.GeminiAPIKey)
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.Search.Addresses)
	assert.True(t, cfg.Storage.UsePathStyle)
	assert.Equal(t, "pw", cfg.Database.Password)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeFile(t, "config.json", `{"server": {"shutdown_timeout": "soon"}}`)
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("unknown storage driver", func(t *testing.T) {
		path := writeFile(t, "config.yml", "storage:\n  driver: ftp\n")
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "unknown storage driver")
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		path := writeFile(t, "config.json", `{"storage": {"driver": "s3", "bucket": ""}}`)
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "bucket is required")
	})
}

func TestDatabaseURL(t *testing.T) {
	db := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, DBName: "x", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5433/x?sslmode=require", db.GetDatabaseURL())

	srv := ServerConfig{Host: "127.0.0.1", Port: 80}
	assert.Equal(t, "127.0.0.1:80", srv.GetServerAddr())
}
