package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edvin/sitehost/internal/api"
	"github.com/edvin/sitehost/internal/bootstrap"
	"github.com/edvin/sitehost/internal/config"
	"github.com/edvin/sitehost/internal/logging"
	"github.com/edvin/sitehost/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ServiceName = "site-api"

	if err := cfg.Validate(cfg.ServiceName); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stack, err := bootstrap.Build(ctx, logger, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize site orchestrator")
	}
	defer stack.Close()

	// In-process scheduling shares the API's per-site locks.
	if cfg.SchedulerEnabled {
		sched, err := scheduler.New(logger, stack.Orchestrator, stack.Retention, cfg.BackupSchedule)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create backup scheduler")
		}
		go func() {
			if err := sched.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("backup scheduler stopped")
			}
		}()
	}

	srv := api.NewServer(logger, stack.Orchestrator)

	// No write timeout: create, migrate and backup run for as long as the
	// command timeout allows.
	httpServer := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting site API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
