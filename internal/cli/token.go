package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trivia-scoring-service/internal/config"
	"trivia-scoring-service/internal/identity"
)

// NewTokenCmd mints a player token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		player string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed player token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if player == "" {
				return fmt.Errorf("--player is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			provider, err := identity.NewHMACProvider(cfg.Identity.Secret)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = config.TTLDuration(cfg.Identity.TokenTTL, 24*time.Hour)
			}
			token, err := provider.Issue(player, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&player, "player", "", "player id to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to identity.token_ttl)")
	return cmd
}
