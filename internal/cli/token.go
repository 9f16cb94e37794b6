package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"audit-portal/portal-backend/internal/auth"
)

// NewTokenCommand creates the token command, which signs a bearer token
// with the configured secret for local testing.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var userID, email string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Sign a bearer token for a user",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Security.JWTSecret == "" {
				return errors.New("security.jwt_secret is required")
			}

			id := uuid.New()
			if userID != "" {
				if id, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid user id %q", userID)
				}
			}

			token, err := auth.NewVerifier(cfg.Security.JWTSecret, cfg.Security.JWTIssuer).
				Issue(auth.User{ID: id, Email: email}, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (random when empty)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
