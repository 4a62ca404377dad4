// Package scheduler runs a backup pass over every registered site on a cron
// schedule, followed by a retention sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/rs/zerolog"

	"github.com/edvin/sitehost/internal/metrics"
	"github.com/edvin/sitehost/internal/model"
	"github.com/edvin/sitehost/internal/platform"
)

// Orchestrator is the part of the lifecycle orchestrator a pass needs.
// Backups go through it so they share per-site locking with API requests.
type Orchestrator interface {
	ListSites(ctx context.Context) ([]string, error)
	BackupSite(ctx context.Context, name string, includeFiles bool) (*model.BackupRecord, error)
}

// Sweeper removes expired archives.
type Sweeper interface {
	Sweep(ctx context.Context) ([]string, error)
}

// RunSummary is the outcome of one pass.
type RunSummary struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Succeeded   int
	Failed      int
	FailedSites []string
	Deleted     []string
	// Err is set when the site list could not be read.
	Err error
}

type Scheduler struct {
	logger       zerolog.Logger
	orch         Orchestrator
	sweeper      Sweeper
	schedule     cron.Schedule
	includeFiles bool
	now          func() time.Time

	// mu keeps passes from overlapping.
	mu sync.Mutex
}

// New parses spec as a standard five-field cron expression evaluated in
// local time. Scheduled backups include public and private files.
func New(logger zerolog.Logger, orch Orchestrator, sweeper Sweeper, spec string) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse backup schedule %q: %w", spec, err)
	}
	// cron reports a schedule with no fire time in the next five years as
	// the zero time.
	if schedule.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("backup schedule %q never fires", spec)
	}
	return &Scheduler{
		logger:       logger.With().Str("component", "backup-scheduler").Logger(),
		orch:         orch,
		sweeper:      sweeper,
		schedule:     schedule,
		includeFiles: true,
		now:          time.Now,
	}, nil
}

// Next returns the first fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run fires a pass at every scheduled time until ctx is cancelled. A pass
// that overruns the next fire time delays it; passes never run concurrently.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Msg("backup scheduler started")
	for {
		next := s.schedule.Next(s.now())
		s.logger.Info().Time("next_run", next).Msg("waiting for next backup run")

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("backup scheduler stopped")
			return nil
		case <-timer.C:
		}

		s.RunOnce(ctx)
	}
}

// RunOnce backs up every registered site in order, then sweeps expired
// archives. One site failing does not stop the pass.
func (s *Scheduler) RunOnce(ctx context.Context) RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := RunSummary{RunID: platform.NewID(), StartedAt: s.now()}
	log := s.logger.With().Str("run_id", sum.RunID).Logger()
	log.Info().Msg("starting backup run")

	sites, err := s.orch.ListSites(ctx)
	if err != nil {
		sum.Err = err
		log.Error().Err(err).Msg("cannot list sites, skipping backups")
	} else if len(sites) == 0 {
		log.Warn().Msg("no sites found to back up")
	}

	for _, site := range sites {
		if ctx.Err() != nil {
			log.Warn().Msg("backup run interrupted")
			break
		}
		rec, err := s.orch.BackupSite(ctx, site, s.includeFiles)
		if err != nil {
			sum.Failed++
			sum.FailedSites = append(sum.FailedSites, site)
			metrics.SchedulerSiteBackupsTotal.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("site", site).Msg("site backup failed")
			continue
		}
		sum.Succeeded++
		metrics.SchedulerSiteBackupsTotal.WithLabelValues("success").Inc()
		log.Info().Str("site", site).Str("archive", rec.ArchiveName).Str("upload", string(rec.UploadState)).Msg("site backed up")
	}

	deleted, err := s.sweeper.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("retention sweep failed")
	}
	sum.Deleted = deleted

	sum.FinishedAt = s.now()
	metrics.SchedulerRunsTotal.Inc()
	metrics.SchedulerLastRunFailures.Set(float64(sum.Failed))
	metrics.SchedulerLastRunTimestamp.Set(float64(sum.FinishedAt.Unix()))

	log.Info().
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("expired_deleted", len(sum.Deleted)).
		Dur("duration", sum.FinishedAt.Sub(sum.StartedAt)).
		Msg("backup run completed")
	return sum
}
