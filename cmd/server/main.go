// Command server is the interview platform backend's entry point: it wires
// every component described by this repository's packages behind one HTTP
// listener, following the load-config, build-dependencies, serve-with-
// graceful-shutdown shape this codebase's ancestry uses in cmd/gateway.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alpha-ashu/Candidate-Experience/internal/aiproxy"
	"github.com/Alpha-ashu/Candidate-Experience/internal/anticheat"
	"github.com/Alpha-ashu/Candidate-Experience/internal/bus"
	"github.com/Alpha-ashu/Candidate-Experience/internal/config"
	"github.com/Alpha-ashu/Candidate-Experience/internal/gateway"
	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
	"github.com/Alpha-ashu/Candidate-Experience/internal/retention"
	"github.com/Alpha-ashu/Candidate-Experience/internal/statemachine"
	"github.com/Alpha-ashu/Candidate-Experience/internal/store"
	"github.com/Alpha-ashu/Candidate-Experience/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.NewFromEnv("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.WithField("err", err).Error("build store")
		os.Exit(1)
	}
	defer closeStore()

	h := bus.NewHub(logger)
	if cfg.BusBroker == "redis" {
		// RedisHub (internal/bus/redis.go) backs the multi-instance fan-out
		// contract with the same Publish/Subscribe shape; swapping it in
		// here requires widening gateway.Server's bus dependency from the
		// concrete *bus.Hub to an interface both types satisfy, which is
		// out of scope for this pass (see DESIGN.md). Until then every
		// instance keeps its own in-process Hub even when BUS_BROKER=redis
		// is configured.
		logger.WithField("busBroker", cfg.BusBroker).Warn("redis fan-out requested but not yet wired into the gateway; using in-process hub")
	}

	authority := token.New(cfg.TokenSigningSecret)
	sm := statemachine.New(st, h, logger)
	ac := anticheat.New(st, sm, h, logger)

	var live aiproxy.Provider
	if cfg.AIProvider == "anthropic" {
		if cfg.AIProviderAPIKey == "" {
			logger.Error("AI_PROVIDER=anthropic but AI_PROVIDER_API_KEY is unset; falling back to deterministic provider only")
		} else {
			live = aiproxy.NewAnthropicProvider(cfg.AIProviderAPIKey, "")
		}
	}
	ai := aiproxy.New(live, cfg.AIProviderTimeout, logger)

	sweeper := retention.New(st, logger, cfg.RetentionWindow)
	if err := sweeper.Start(ctx, cfg.RetentionSweep); err != nil {
		logger.WithField("err", err).Error("start retention sweeper")
		os.Exit(1)
	}
	defer sweeper.Stop()

	srv := gateway.New(cfg, st, sm, ac, ai, h, authority, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("interview platform server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithField("err", err).Error("http server exited")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithField("err", err).Error("graceful shutdown failed")
	}
}

// buildStore selects the Postgres-backed Store when DATABASE_URL is
// configured, migrating it on startup, and falls back to the in-memory
// Store otherwise (suitable for local development and the test suite).
func buildStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory session store (data does not survive a restart)")
		return store.NewMemory(), func() {}, nil
	}

	migrationsPath := config.GetEnv("DATABASE_MIGRATIONS_PATH", "internal/store/migrations")
	if err := store.Migrate(cfg.DatabaseURL, migrationsPath); err != nil {
		return nil, nil, err
	}

	db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgres(db), func() { _ = db.Close() }, nil
}
