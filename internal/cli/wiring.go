package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"trivia-scoring-service/internal/app"
	"trivia-scoring-service/internal/config"
	"trivia-scoring-service/internal/domain"
	"trivia-scoring-service/internal/infra/memory"
	pgstore "trivia-scoring-service/internal/infra/postgres"
	redisstore "trivia-scoring-service/internal/infra/redis"
	"trivia-scoring-service/internal/infra/sqlite"
)

// backends holds the collaborators chosen by configuration.
type backends struct {
	ledger  app.SessionLedger
	vault   app.QuestionVault
	traces  app.TraceIndex
	board   app.Leaderboard
	catalog app.QuestionCatalog
	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// questionSource is satisfied by the static, postgres and sqlite loaders.
type questionSource interface {
	memory.QuestionLoader
	app.QuestionCatalog
}

type questionSaver interface {
	SaveQuestions(ctx context.Context, questions []domain.Question) error
}

func buildBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
	}

	var store *sqlite.Store
	if cfg.Ledger.Backend == "sqlite" {
		path := cfg.SQLite.Path
		if path == "" {
			path = "data/trivia.db"
		}
		var err error
		store, err = sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = store.Close() })
	}

	seed, err := seedQuestions(cfg)
	if err != nil {
		return nil, err
	}

	var loader questionSource
	var saver questionSaver
	switch {
	case store != nil:
		loader, saver = store.Questions(), store.Questions()
	case pool != nil:
		qs := pgstore.NewQuestionStore(pool)
		loader, saver = qs, qs
	default:
		loader = memory.NewStaticQuestionLoader(seed...)
	}
	if saver != nil && cfg.Vault.Seed != "" {
		if err := saver.SaveQuestions(ctx, seed); err != nil {
			return nil, fmt.Errorf("seed questions: %w", err)
		}
		logger.Info("question catalog seeded", "questions", len(seed), "file", cfg.Vault.Seed)
	}

	b.catalog = loader

	vaultTTL := config.TTLDuration(cfg.Vault.TTL, 10*time.Minute)
	if redisClient != nil {
		b.vault = redisstore.NewQuestionVault(redisClient, loader, vaultTTL)
	} else {
		b.vault = memory.NewQuestionVault(loader, vaultTTL)
	}

	switch cfg.Ledger.Backend {
	case "", "memory":
		b.ledger = memory.NewSessionLedger()
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("ledger backend redis needs redis.addr")
		}
		b.ledger = redisstore.NewSessionLedger(redisClient, config.TTLDuration(cfg.Redis.TTL, 0))
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("ledger backend postgres needs postgres.url")
		}
		b.ledger = pgstore.NewSessionLedger(pool)
	case "sqlite":
		b.ledger = store.Sessions()
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	retention := config.TTLDuration(cfg.AntiCheat.TraceRetention, 24*time.Hour)
	switch {
	case store != nil:
		b.traces, b.board = store.Traces(retention), store.Leaderboard()
	case redisClient != nil:
		b.traces, b.board = redisstore.NewTraceIndex(redisClient, retention), redisstore.NewLeaderboard(redisClient)
	default:
		b.traces, b.board = memory.NewTraceIndex(retention), memory.NewLeaderboard()
	}

	logger.Info("backends ready",
		"ledger", cfg.Ledger.Backend,
		"redis", redisClient != nil,
		"postgres", pool != nil,
		"sqlite", store != nil,
	)
	ok = true
	return b, nil
}

// antiCheatConfig overlays configured thresholds on the defaults.
func antiCheatConfig(cfg config.Config) app.AntiCheatConfig {
	ac := app.DefaultAntiCheatConfig()
	c := cfg.AntiCheat
	if c.MinAnswerMillis > 0 {
		ac.MinAnswerMillis = c.MinAnswerMillis
	}
	if c.PerCharMillis > 0 {
		ac.PerCharMillis = c.PerCharMillis
	}
	if c.PerWeightMillis > 0 {
		ac.PerWeightMillis = c.PerWeightMillis
	}
	if c.SessionFloorPerQuestion > 0 {
		ac.SessionFloorPerQuestionMillis = c.SessionFloorPerQuestion
	}
	if c.RejectViolations > 0 {
		ac.RejectViolations = c.RejectViolations
	}
	ac.ReplayWindow = config.TTLDuration(c.ReplayWindow, ac.ReplayWindow)
	return ac
}

func seedQuestions(cfg config.Config) ([]domain.Question, error) {
	if cfg.Vault.Seed == "" {
		return sampleQuestions(), nil
	}
	return memory.LoadCatalog(cfg.Vault.Seed)
}

// sampleQuestions provides a minimal catalog; point vault.seed at a YAML catalog in production.
func sampleQuestions() []domain.Question {
	qs := []domain.Question{
		{ID: "q-capital-fr", Prompt: "What is the capital of France?", Type: domain.QuestionText, CorrectAnswer: "Paris", Weight: 10, Mode: "classic", Difficulty: "easy"},
		{ID: "q-six-times-seven", Prompt: "What is 6 x 7?", Type: domain.QuestionInteger, CorrectAnswer: "42", Weight: 5, Mode: "classic", Difficulty: "easy"},
		{ID: "q-pi", Prompt: "Pi to two decimal places?", Type: domain.QuestionDecimal, CorrectAnswer: "3.14", Weight: 5, Mode: "classic", Difficulty: "hard"},
		{ID: "q-planet", Prompt: "Which planet is largest? A) Mars B) Jupiter C) Venus", Type: domain.QuestionChoice, CorrectAnswer: "B", Weight: 2.5, Mode: "blitz", Difficulty: "easy"},
	}
	for i := range qs {
		qs[i] = qs[i].Sealed()
	}
	return qs
}
