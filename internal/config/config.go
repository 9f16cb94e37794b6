package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"audit-portal/portal-backend/internal/ai"
	"audit-portal/portal-backend/internal/search"
	"audit-portal/portal-backend/pkg/storage"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Security      SecurityConfig      `json:"security" yaml:"security"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	AI            ai.Config           `json:"ai" yaml:"ai"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Notifications NotificationsConfig `json:"notifications" yaml:"notifications"`
	Search        search.Config       `json:"search" yaml:"search"`
	Worker        WorkerConfig        `json:"worker" yaml:"worker"`
	Reports       ReportsConfig       `json:"reports" yaml:"reports"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string   `json:"host" yaml:"host"`
	Port            int      `json:"port" yaml:"port"`
	ReadTimeout     Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string `json:"allowed_origins" yaml:"allowed_origins"`
	// PublicBaseURL is where the web client is served, used in share links
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	User           string   `json:"user" yaml:"user"`
	Password       string   `json:"password" yaml:"password"`
	DBName         string   `json:"db_name" yaml:"db_name"`
	SSLMode        string   `json:"ssl_mode" yaml:"ssl_mode"`
	MaxConnections int      `json:"max_connections" yaml:"max_connections"`
	MaxIdleConns   int      `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxLifetime    Duration `json:"max_lifetime" yaml:"max_lifetime"`
	MigrationsPath string   `json:"migrations_path" yaml:"migrations_path"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer string `json:"jwt_issuer" yaml:"jwt_issuer"`
	// SecretboxKey is a base64 32 byte key sealing stored bot tokens
	SecretboxKey string `json:"secretbox_key" yaml:"secretbox_key"`
}

// LoggingConfig
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Storage drivers
const (
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// StorageConfig selects where attachments are kept
type StorageConfig struct {
	Driver           string `json:"driver" yaml:"driver"`
	storage.S3Config `yaml:",inline"`
}

// NotificationsConfig
type NotificationsConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	EmailFrom       string   `json:"email_from" yaml:"email_from"`
	SMSSenderID     string   `json:"sms_sender_id" yaml:"sms_sender_id"`
	TelegramURL     string   `json:"telegram_url" yaml:"telegram_url"`
	TelegramTimeout Duration `json:"telegram_timeout" yaml:"telegram_timeout"`
}

// WorkerConfig drives the event count resync
type WorkerConfig struct {
	// ResyncSchedule is a cron spec with a seconds field
	ResyncSchedule string `json:"resync_schedule" yaml:"resync_schedule"`
	Concurrency    int    `json:"concurrency" yaml:"concurrency"`
}

// ReportsConfig
type ReportsConfig struct {
	CacheTTL Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(2 * time.Minute),
			IdleTimeout:     Duration(time.Minute),
			ShutdownTimeout: Duration(5 * time.Second),
			PublicBaseURL:   "http://localhost:5173",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "audit_portal",
			SSLMode:        "disable",
			MaxConnections: 20,
			MaxIdleConns:   5,
			MaxLifetime:    Duration(30 * time.Minute),
			MigrationsPath: "migrations",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		AI: ai.Config{
			Provider: ai.ProviderGemini,
		},
		Storage: StorageConfig{
			Driver: StorageMemory,
			S3Config: storage.S3Config{
				Bucket: "audit-files",
				Region: "us-east-1",
			},
		},
		Notifications: NotificationsConfig{
			Enabled:         true,
			TelegramTimeout: Duration(10 * time.Second),
		},
		Search: search.Config{
			Index: search.DefaultIndex,
		},
		Worker: WorkerConfig{
			ResyncSchedule: "0 */5 * * * *",
			Concurrency:    4,
		},
		Reports: ReportsConfig{
			CacheTTL: Duration(10 * time.Minute),
		},
	}
}

// LoadConfig loads configuration from defaults, an optional JSON or YAML
// file, a .env file in the working directory and environment variables, in
// that order.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(configPath, data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// a missing .env is fine
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return json.Unmarshal(data, config)
	}
}

func overrideWithEnv(config *Config) {
	setString(&config.Server.Host, "SERVER_HOST")
	setInt(&config.Server.Port, "SERVER_PORT")
	setString(&config.Server.PublicBaseURL, "PUBLIC_BASE_URL")
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = splitList(origins)
	}

	setString(&config.Database.Host, "DATABASE_HOST")
	setInt(&config.Database.Port, "DATABASE_PORT")
	setString(&config.Database.User, "DATABASE_USER")
	setString(&config.Database.Password, "DATABASE_PASSWORD")
	setString(&config.Database.DBName, "DATABASE_DBNAME")
	setString(&config.Database.SSLMode, "DATABASE_SSLMODE")

	setString(&config.Security.JWTSecret, "JWT_SECRET")
	setString(&config.Security.JWTIssuer, "JWT_ISSUER")
	setString(&config.Security.SecretboxKey, "SECRETBOX_KEY")

	setString(&config.Logging.Level, "LOG_LEVEL")
	setString(&config.Logging.Format, "LOG_FORMAT")

	setString(&config.AI.Provider, "AI_PROVIDER")
	setString(&config.AI.Model, "AI_MODEL")
	setString(&config.AI.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&config.AI.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&config.AI.OpenAIURL, "OPENAI_BASE_URL")

	setString(&config.Storage.Driver, "STORAGE_DRIVER")
	setString(&config.Storage.Bucket, "S3_BUCKET")
	setString(&config.Storage.Region, "AWS_REGION")
	setString(&config.Storage.Endpoint, "S3_ENDPOINT")
	setString(&config.Storage.AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&config.Storage.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setString(&config.Storage.PublicBaseURL, "S3_PUBLIC_BASE_URL")
	if v := os.Getenv("S3_USE_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Storage.UsePathStyle = b
		}
	}

	setString(&config.Notifications.EmailFrom, "NOTIFY_EMAIL_FROM")
	setString(&config.Notifications.SMSSenderID, "NOTIFY_SMS_SENDER_ID")
	setString(&config.Notifications.TelegramURL, "TELEGRAM_API_URL")

	if addrs := os.Getenv("ELASTICSEARCH_URL"); addrs != "" {
		config.Search.Addresses = splitList(addrs)
	}
	setString(&config.Search.Username, "ELASTICSEARCH_USERNAME")
	setString(&config.Search.Password, "ELASTICSEARCH_PASSWORD")

	setString(&config.Worker.ResyncSchedule, "RESYNC_SCHEDULE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports settings the server cannot start without
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Storage.Driver {
	case StorageS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the s3 driver")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Worker.Concurrency < 1 {
		c.Worker.Concurrency = 1
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Duration is a time.Duration written as "30s" or "5m" in config files
type Duration time.Duration

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}
