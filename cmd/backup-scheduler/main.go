package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/edvin/sitehost/internal/bootstrap"
	"github.com/edvin/sitehost/internal/config"
	"github.com/edvin/sitehost/internal/logging"
	"github.com/edvin/sitehost/internal/metrics"
	"github.com/edvin/sitehost/internal/scheduler"
)

func main() {
	once := flag.Bool("once", false, "Run a single backup pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ServiceName = "backup-scheduler"

	if err := cfg.Validate(cfg.ServiceName); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := bootstrap.Build(ctx, logger, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize site orchestrator")
	}
	defer stack.Close()

	sched, err := scheduler.New(logger, stack.Orchestrator, stack.Retention, cfg.BackupSchedule)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create backup scheduler")
	}

	if *once {
		summary := sched.RunOnce(ctx)
		stack.Close()
		if summary.Err != nil || summary.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	if cfg.MetricsAddr != "" {
		metricsServer := metrics.NewServer(cfg.MetricsAddr, func(ctx context.Context) error {
			_, err := stack.Orchestrator.ListSites(ctx)
			return err
		})
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer metricsServer.Close()
	}

	logger.Info().
		Str("schedule", cfg.BackupSchedule).
		Int("retention_days", cfg.BackupRetentionDays).
		Msg("backup scheduler started")

	if err := sched.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("backup scheduler stopped")
	}
	logger.Info().Msg("backup scheduler shutting down")
}
