package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trivia-scoring-service/internal/app"
	"trivia-scoring-service/internal/config"
	"trivia-scoring-service/internal/identity"
	transport "trivia-scoring-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	provider, err := identity.NewHMACProvider(cfg.Identity.Secret)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	b, err := buildBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	feedSize := cfg.Leaderboard.FeedSize
	if feedSize <= 0 {
		feedSize = 10
	}
	service := app.NewGameService(b.ledger, b.vault, b.traces, b.board,
		app.WithLogger(logger),
		app.WithAntiCheat(antiCheatConfig(cfg)),
		app.WithCatalog(b.catalog),
		app.WithFeed(app.NewLeaderboardFeed(), feedSize),
	)

	api := transport.NewAPIHandler(service, provider, logger)
	ws := transport.NewWSHandler(service, provider, logger)

	// No WriteTimeout: it would also cut hijacked websocket connections.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           api.Routes(ws),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting trivia service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
