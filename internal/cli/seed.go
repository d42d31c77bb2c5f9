package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"trivia-scoring-service/internal/config"
	"trivia-scoring-service/internal/infra/memory"
	pgstore "trivia-scoring-service/internal/infra/postgres"
	"trivia-scoring-service/internal/infra/sqlite"
)

// NewSeedCmd loads a YAML question catalog into the configured database.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a question catalog into Postgres or SQLite",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Vault.Seed
			}
			if file == "" {
				return fmt.Errorf("no catalog file: pass --file or set vault.seed")
			}
			return runSeed(cmd.Context(), cfg, file, cmd)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML question catalog")
	return cmd
}

func runSeed(ctx context.Context, cfg config.Config, file string, cmd *cobra.Command) error {
	questions, err := memory.LoadCatalog(file)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	switch {
	case cfg.Ledger.Backend == "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = "data/trivia.db"
		}
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Questions().SaveQuestions(ctx, questions); err != nil {
			return err
		}
	case cfg.Postgres.URL != "":
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pgstore.NewQuestionStore(pool).SaveQuestions(ctx, questions); err != nil {
			return err
		}
	default:
		return fmt.Errorf("seed needs postgres.url or ledger.backend=sqlite")
	}

	logger.Info("catalog seeded", "file", file, "questions", len(questions))
	return nil
}
