package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/sitehost/internal/backup"
	"github.com/edvin/sitehost/internal/executor"
	"github.com/edvin/sitehost/internal/registry"
	"github.com/edvin/sitehost/internal/sitelock"
)

var fixedTime = time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)

// fakeBench is a scripted bench CLI. By default it behaves like a real
// bench: new-site provisions, drop-site removes (reporting a missing site),
// backup writes a dump into --backup-path. Per-subcommand overrides replace
// that behavior. It also records whether two commands for the same site
// ever ran at the same time.
type fakeBench struct {
	mu          sync.Mutex
	calls       []executor.Invocation
	provisioned map[string]bool
	running     map[string]int
	overlapped  bool
	delay       time.Duration
	overrides   map[string]func(executor.Invocation) (*executor.Result, error)
}

func newFakeBench() *fakeBench {
	return &fakeBench{
		provisioned: make(map[string]bool),
		running:     make(map[string]int),
		overrides:   make(map[string]func(executor.Invocation) (*executor.Result, error)),
	}
}

func (f *fakeBench) on(sub string, fn func(executor.Invocation) (*executor.Result, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[sub] = fn
}

// Execute performs the scripted behavior first and then waits for the
// configured delay. A caller context that ends during the wait aborts the
// call the way a context-bound executor would, after the side effect.
func (f *fakeBench) Execute(ctx context.Context, inv executor.Invocation) (*executor.Result, error) {
	sub, site := parseInvocation(inv)

	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.running[site]++
	if f.running[site] > 1 {
		f.overlapped = true
	}
	override := f.overrides[sub]
	delay := f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running[site]--
		f.mu.Unlock()
	}()

	var res *executor.Result
	var err error
	if override != nil {
		res, err = override(inv)
	} else {
		res, err = f.defaultBehavior(sub, site, inv)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("run %s: %w", inv.Command, ctx.Err())
		}
	}
	return res, err
}

func (f *fakeBench) defaultBehavior(sub, site string, inv executor.Invocation) (*executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch sub {
	case "new-site":
		if f.provisioned[site] {
			return &executor.Result{ExitCode: 1, Output: "Site " + site + " already exists"}, nil
		}
		f.provisioned[site] = true
		return &executor.Result{Output: "*** Scheduler is disabled ***"}, nil
	case "drop-site":
		if !f.provisioned[site] {
			return &executor.Result{ExitCode: 1, Output: "Site " + site + " does not exist"}, nil
		}
		delete(f.provisioned, site)
		return &executor.Result{}, nil
	case "list-apps":
		if !f.provisioned[site] {
			return &executor.Result{ExitCode: 1, Output: "Site " + site + " does not exist"}, nil
		}
		return &executor.Result{Output: "frappe\nerpnext\n"}, nil
	case "backup":
		dir := inv.Args[slices.Index(inv.Args, "--backup-path")+1]
		if err := os.WriteFile(filepath.Join(dir, "database.sql.gz"), []byte("dump"), 0644); err != nil {
			return nil, err
		}
		return &executor.Result{Output: "Backup Summary"}, nil
	}
	return &executor.Result{}, nil
}

func (f *fakeBench) subcommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, inv := range f.calls {
		sub, _ := parseInvocation(inv)
		out = append(out, sub)
	}
	return out
}

func (f *fakeBench) call(i int) executor.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeBench) isProvisioned(site string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.provisioned[site]
}

// parseInvocation extracts the bench subcommand and its site.
func parseInvocation(inv executor.Invocation) (string, string) {
	args := inv.Args
	if len(args) >= 3 && args[0] == "--site" {
		return args[2], args[1]
	}
	if len(args) >= 2 {
		return args[0], args[1]
	}
	return "", ""
}

type mockDataStore struct {
	mock.Mock
}

func (m *mockDataStore) DatabaseExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *mockDataStore) CountDatabases(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockContainers struct {
	mock.Mock
}

func (m *mockContainers) RunningContainers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type testEnv struct {
	orch       *Orchestrator
	cfg        Config
	bench      *fakeBench
	registry   *registry.Registry
	store      *mockDataStore
	containers *mockContainers
	backupRoot string
	lockDir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		cfg: Config{
			BenchBin:       "bench",
			BenchDir:       "/home/frappe/frappe-bench",
			DBRootPassword: "rootpw",
			CommandTimeout: time.Minute,
			DefaultApps:    []string{"erpnext"},
		},
		bench:      newFakeBench(),
		registry:   registry.New(zerolog.Nop(), filepath.Join(dir, "sites", "sites.txt")),
		store:      &mockDataStore{},
		containers: &mockContainers{},
		backupRoot: filepath.Join(dir, "backups"),
		lockDir:    filepath.Join(dir, "sites", ".locks"),
	}
	require.NoError(t, os.MkdirAll(env.backupRoot, 0755))

	env.orch = New(zerolog.Nop(), env.cfg, Deps{
		Executor:   env.bench,
		Registry:   env.registry,
		Locks:      sitelock.NewManager(env.lockDir),
		Backups:    env.pipeline(),
		DataStore:  env.store,
		Containers: env.containers,
	})
	env.orch.now = func() time.Time { return fixedTime }
	return env
}

func (e *testEnv) pipeline() *backup.Pipeline {
	return backup.NewPipeline(zerolog.Nop(), e.bench, nil, backup.PipelineConfig{
		BenchBin: "bench",
		BenchDir: "/home/frappe/frappe-bench",
		Root:     e.backupRoot,
		Timeout:  time.Minute,
		Now:      func() time.Time { return fixedTime },
	})
}

// peer builds a second orchestrator the way another process would: same
// runtime, registry file, backup root and lock directory, but its own
// registry handle and lock manager.
func (e *testEnv) peer() *Orchestrator {
	orch := New(zerolog.Nop(), e.cfg, Deps{
		Executor: e.bench,
		Registry: registry.New(zerolog.Nop(), e.registry.Path()),
		Locks:    sitelock.NewManager(e.lockDir),
		Backups:  e.pipeline(),
	})
	orch.now = func() time.Time { return fixedTime }
	return orch
}

// seed provisions and registers a site without going through CreateSite.
func (e *testEnv) seed(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		e.bench.mu.Lock()
		e.bench.provisioned[n] = true
		e.bench.mu.Unlock()
		require.NoError(t, e.registry.Add(n))
	}
}

func failWith(code int, output string) func(executor.Invocation) (*executor.Result, error) {
	return func(executor.Invocation) (*executor.Result, error) {
		return &executor.Result{ExitCode: code, Output: output}, nil
	}
}
