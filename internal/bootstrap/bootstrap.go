// Package bootstrap assembles the orchestrator and its collaborators from
// configuration. Both binaries share it so the API and the scheduler run
// against identically configured components.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/sitehost/internal/backup"
	"github.com/edvin/sitehost/internal/config"
	"github.com/edvin/sitehost/internal/datastore"
	"github.com/edvin/sitehost/internal/executor"
	"github.com/edvin/sitehost/internal/registry"
	"github.com/edvin/sitehost/internal/sitelock"
	"github.com/edvin/sitehost/internal/workflow"
)

// DefaultApps are installed on new sites when the request names none.
var DefaultApps = []string{"erpnext"}

type Stack struct {
	Orchestrator *workflow.Orchestrator
	Retention    *backup.Retention

	closers []func() error
}

// Build wires the executor, registry, lock manager, datastore probe, upload
// target and backup pipeline into an orchestrator. Close releases whatever
// Build opened.
func Build(ctx context.Context, logger zerolog.Logger, cfg *config.Config) (*Stack, error) {
	st := &Stack{}

	deps := workflow.Deps{
		Registry: registry.New(logger, cfg.SitesFile),
		Locks:    sitelock.NewManager(cfg.LockDir),
	}

	switch cfg.Executor {
	case "docker":
		ex, err := executor.NewDockerExecutor(logger, cfg.RuntimeContainer, cfg.CommandTimeout)
		if err != nil {
			return nil, fmt.Errorf("create docker executor: %w", err)
		}
		st.closers = append(st.closers, ex.Close)
		deps.Executor = ex
		deps.Containers = ex
	case "local":
		deps.Executor = executor.NewLocalExecutor(logger, cfg.CommandTimeout)
	default:
		return nil, fmt.Errorf("unknown executor %q", cfg.Executor)
	}

	if cfg.MySQLDSN != "" {
		prober, err := datastore.NewMySQLProber(logger, cfg.MySQLDSN)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("create datastore probe: %w", err)
		}
		st.closers = append(st.closers, prober.Close)
		deps.DataStore = prober
	} else {
		logger.Warn().Msg("MYSQL_DSN not set, datastore health probes disabled")
	}

	var uploader backup.Uploader
	if cfg.S3BackupEnabled {
		up, err := backup.NewS3Uploader(ctx, logger, backup.S3Config{
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("create backup uploader: %w", err)
		}
		uploader = up
	}

	deps.Backups = backup.NewPipeline(logger, deps.Executor, uploader, backup.PipelineConfig{
		BenchBin:    cfg.BenchBin,
		BenchDir:    cfg.BenchDir,
		Root:        cfg.BackupDir,
		RuntimeRoot: cfg.BackupRuntimeDir,
		Timeout:     cfg.CommandTimeout,
	})

	st.Retention = backup.NewRetention(logger, cfg.BackupDir, cfg.BackupRetentionDays)
	st.Orchestrator = workflow.New(logger, workflow.Config{
		BenchBin:       cfg.BenchBin,
		BenchDir:       cfg.BenchDir,
		DBRootPassword: cfg.MySQLRootPassword,
		CommandTimeout: cfg.CommandTimeout,
		DefaultApps:    DefaultApps,
	}, deps)

	return st, nil
}

func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
