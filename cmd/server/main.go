package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"safe-command-gateway/internal/api"
	"safe-command-gateway/internal/config"
	"safe-command-gateway/internal/executor"
	"safe-command-gateway/internal/gateway"
	"safe-command-gateway/internal/monitor"
	"safe-command-gateway/internal/ratelimit"
	"safe-command-gateway/internal/safety"
	"safe-command-gateway/internal/storage"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := monitor.NewMetrics()

	// Resolve the shell once at startup; without one the gateway cannot run.
	var shell executor.Shell
	if cfg.Executor.Shell != "" {
		shell = executor.ShellFromPath(cfg.Executor.Shell)
	} else {
		shell, err = executor.DetectShell()
		if err != nil {
			log.Fatal().Err(err).Msg("no usable shell found")
		}
	}
	log.Info().Str("shell", shell.Exe).Msg("shell resolved")

	// Initialize database (optional — runs without it for development)
	var db *storage.DB
	if cfg.Database.Enabled {
		db, err = storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, journaling disabled")
		} else {
			defer db.Close()
		}
	}

	var journal *storage.JournalWriter
	var sink safety.JournalSink
	var audit gateway.InvocationRecorder
	if db != nil {
		journal = storage.NewJournalWriter(db)
		defer journal.Close()
		sink = journal
		audit = journal
	}

	var provider safety.PatternProvider
	if cfg.Learning.PatternsFile != "" {
		provider = &safety.FilePatternProvider{Path: cfg.Learning.PatternsFile}
	}

	classifier := safety.NewClassifier(provider)
	tracker := safety.NewTracker(cfg.Learning.MaxTracked, sink)

	var limiter *ratelimit.Limiter
	if cfg.Security.RateLimit.Enabled {
		rl := cfg.Security.RateLimit
		limiter = ratelimit.New(rl.Burst, rl.RefillInterval, rl.RequestsPerFill)
	}

	supervisor := executor.New(shell, cfg.Executor.MaxConcurrent)
	gw := gateway.New(cfg, classifier, tracker, limiter, supervisor, metrics, audit)

	server := api.NewServer(cfg, gw, db, shell, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("db_enabled", db != nil).
		Bool("rate_limit", limiter != nil).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
