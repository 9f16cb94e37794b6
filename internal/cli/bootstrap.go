package cli

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"audit-portal/portal-backend/internal/config"
	"audit-portal/portal-backend/internal/notifications"
	"audit-portal/portal-backend/pkg/storage"
)

// NewLogger builds a zap logger. The console format uses the development
// encoder; anything else logs JSON.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = level
	}
	return zc.Build()
}

// OpenDatabase connects sqlx to PostgreSQL and applies the pool limits
func OpenDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime.Std())
	}
	return db, nil
}

// OpenGorm shares the sqlx connection pool with gorm
func OpenGorm(db *sqlx.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}

// NewObjectStore returns the configured attachment store
func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case config.StorageS3:
		return storage.NewS3Client(ctx, cfg.S3Config)
	default:
		return storage.NewMemoryStore(cfg.PublicBaseURL), nil
	}
}

// NewSenders builds the notification channels. Email needs a sender
// address and SMS a sender id; Telegram is always on and skips profiles
// without a bot.
func NewSenders(ctx context.Context, cfg *config.Config) ([]notifications.Sender, error) {
	senders := []notifications.Sender{
		notifications.NewTelegramChannel(cfg.Notifications.TelegramURL, cfg.Notifications.TelegramTimeout.Std()),
	}
	if cfg.Notifications.EmailFrom == "" && cfg.Notifications.SMSSenderID == "" {
		return senders, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Storage.Region)}
	if cfg.Storage.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	if cfg.Notifications.EmailFrom != "" {
		senders = append(senders, notifications.NewEmailChannel(sesv2.NewFromConfig(awsCfg), cfg.Notifications.EmailFrom))
	}
	if cfg.Notifications.SMSSenderID != "" {
		senders = append(senders, notifications.NewSMSChannel(sns.NewFromConfig(awsCfg), cfg.Notifications.SMSSenderID))
	}
	return senders, nil
}
