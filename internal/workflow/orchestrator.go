// Package workflow sequences site lifecycle operations on top of the command
// executor, the site registry and the backup pipeline.
//
// Every mutating operation holds the per-site lock for its whole duration.
// The caller's context bounds only the wait for that lock; once it is held
// the operation runs to completion, limited by the command timeout.
// The registry is only changed after the external step it records has
// succeeded, and nothing is retried here: callers decide whether to retry.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/sitehost/internal/executor"
	"github.com/edvin/sitehost/internal/metrics"
	"github.com/edvin/sitehost/internal/model"
	"github.com/edvin/sitehost/internal/platform"
	"github.com/edvin/sitehost/internal/sitelock"
)

var (
	ErrInvalidSiteName    = errors.New("invalid site name")
	ErrNotFound           = errors.New("site not found")
	ErrAlreadyExists      = errors.New("site already exists")
	ErrProvisioningFailed = errors.New("site provisioning failed")
	ErrDeletionFailed     = errors.New("site deletion failed")
	ErrMigrationFailed    = errors.New("site migration failed")
	ErrBackupFailed       = errors.New("site backup failed")
)

// Registry is the authoritative list of sites.
type Registry interface {
	List() ([]string, error)
	Exists(name string) (bool, error)
	Add(name string) error
	Remove(name string) error
}

// DataStore answers questions about tenant databases.
type DataStore interface {
	DatabaseExists(ctx context.Context, name string) (bool, error)
	CountDatabases(ctx context.Context) (int, error)
}

// BackupPipeline produces and lists site archives.
type BackupPipeline interface {
	Backup(ctx context.Context, site string, includeFiles bool) (*model.BackupRecord, error)
	List(site string) ([]model.BackupRecord, error)
}

// ContainerCounter reports how many runtime containers are running.
type ContainerCounter interface {
	RunningContainers(ctx context.Context) (int, error)
}

type Config struct {
	BenchBin       string
	BenchDir       string
	DBRootPassword string
	CommandTimeout time.Duration
	// DefaultApps are installed when a create request names none.
	DefaultApps []string
}

// Deps are the collaborators of an Orchestrator. DataStore and Containers
// are optional; their signals are then reported as unavailable.
type Deps struct {
	Executor   executor.Executor
	Registry   Registry
	Locks      *sitelock.Manager
	Backups    BackupPipeline
	DataStore  DataStore
	Containers ContainerCounter
}

type Orchestrator struct {
	logger     zerolog.Logger
	cfg        Config
	exec       executor.Executor
	registry   Registry
	locks      *sitelock.Manager
	backups    BackupPipeline
	datastore  DataStore
	containers ContainerCounter
	now        func() time.Time

	mu     sync.Mutex
	status map[string]model.SiteStatus
}

func New(logger zerolog.Logger, cfg Config, deps Deps) *Orchestrator {
	if cfg.BenchBin == "" {
		cfg.BenchBin = "bench"
	}
	locks := deps.Locks
	if locks == nil {
		locks = sitelock.NewManager("")
	}
	return &Orchestrator{
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		cfg:        cfg,
		exec:       deps.Executor,
		registry:   deps.Registry,
		locks:      locks,
		backups:    deps.Backups,
		datastore:  deps.DataStore,
		containers: deps.Containers,
		now:        time.Now,
		status:     make(map[string]model.SiteStatus),
	}
}

// bench runs one bench subcommand and folds the outcome into an error.
func (o *Orchestrator) bench(ctx context.Context, step string, args ...string) (*executor.Result, error) {
	return executor.Run(ctx, o.exec, step, executor.Invocation{
		Command: o.cfg.BenchBin,
		Args:    args,
		WorkDir: o.cfg.BenchDir,
		Timeout: o.cfg.CommandTimeout,
	})
}

// lockRegistered validates name, takes its lock and checks it is registered.
// On success the caller owns the returned release function.
func (o *Orchestrator) lockRegistered(ctx context.Context, name string) (func(), error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	release, err := o.locks.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := o.requireRegistered(name); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (o *Orchestrator) requireRegistered(name string) error {
	ok, err := o.registry.Exists(name)
	if err != nil {
		return fmt.Errorf("check registry for %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func validateName(name string) error {
	if err := platform.ValidateSiteName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSiteName, err)
	}
	return nil
}

func (o *Orchestrator) setStatus(name string, s model.SiteStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status[name] = s
}

func (o *Orchestrator) clearStatus(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.status, name)
}

// currentStatus is the transient status of a running operation, or active.
func (o *Orchestrator) currentStatus(name string) model.SiteStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.status[name]; ok {
		return s
	}
	return model.StatusActive
}

// observe records the outcome of one operation.
func observe(op string, start time.Time, err error) {
	metrics.WorkflowOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.WorkflowOperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidSiteName):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, executor.ErrInfrastructure):
		return "infrastructure"
	default:
		return "failed"
	}
}
