package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricewatch-io/pricewatch/internal/api"
	"github.com/pricewatch-io/pricewatch/internal/clock/system"
	"github.com/pricewatch-io/pricewatch/internal/config"
	"github.com/pricewatch-io/pricewatch/internal/metrics"
	"github.com/pricewatch-io/pricewatch/internal/store/memory"
	"github.com/pricewatch-io/pricewatch/internal/store/postgres"
	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracking API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	service := tracker.NewService(store, tracker.NewValidator(cfg.Allowlist), system.New(), logger)
	server := api.NewServer(service, cfg, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildStore selects Postgres when a DSN is configured, otherwise the
// in-memory store for development runs. The Postgres schema is applied on
// startup; every statement is conditional so reruns are no-ops.
func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (tracker.Store, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database.dsn configured, using in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	store, err := postgres.NewStore(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: time.Duration(cfg.Database.ConnLifeMins) * time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("postgres registry ready")
	return store, store.Close, nil
}
