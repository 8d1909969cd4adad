// cmd/server/main.go
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/config"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/scheduler"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/secrets"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/session"
)

const defaultConfigPath = "config/app.yaml"

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func ensureSecretKey(cfg *config.Config) error {
	if cfg.App.SecretKey != "" {
		return nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generate secret key: %w", err)
	}
	cfg.App.SecretKey = hex.EncodeToString(key)
	log.Warn().Msg("INSIGHTS_APP_SECRET_KEY not set; using an ephemeral key, sessions will not survive restarts")
	return nil
}

func main() {
	cfg, err := config.Load(getEnv("INSIGHTS_CONFIG", defaultConfigPath))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	if err := ensureSecretKey(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare session signing key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.With().Str("component", "startup").Logger()
	startupCtx := logger.WithContext(ctx)

	secret, source, err := secrets.Resolve(startupCtx, cfg.Secrets)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load secrets")
	}
	logger.Info().Str("source", source).Msg("Secrets loaded")

	store := session.NewStore(cfg.Session.TTL, nil)
	sessions := session.NewManager(store, cfg.App.SecretKey, !cfg.IsDevelopment())

	sched, err := scheduler.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize scheduler")
	}
	if err := scheduler.RegisterSessionPrune(sched, store, cfg.Session.PruneCron); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register session prune job")
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop scheduler")
		}
	}()

	server, err := newServer(cfg, secret, sessions)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build server")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Str("environment", cfg.App.Environment).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}
