package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
)

// NewTokenCmd mints a host token for a quiz creator.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID   int64
		username string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a host token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if !cfg.AuthEnabled() {
				return fmt.Errorf("auth secret not configured")
			}
			if userID <= 0 {
				return fmt.Errorf("--user-id is required")
			}
			tokens := auth.NewJWTService(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
			token, err := tokens.Generate(userID, username)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "id of the quiz creator")
	cmd.Flags().StringVar(&username, "username", "", "username embedded in the token")
	return cmd
}
