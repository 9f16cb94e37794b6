package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command for the portal backend.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "audit-portal",
		Short: "Audit portal backend",
		Long: `Backend of the audit portal: projects split into stages, a per-day plan,
an event log for every plan item, realtime updates and AI assistance.`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to a JSON or YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logging.level (debug|info|warn|error)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewResyncCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// load reads the configuration and builds the logger every command shares
func (o *RootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
