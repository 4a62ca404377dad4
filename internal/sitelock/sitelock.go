// Package sitelock provides per-site mutual exclusion.
//
// Within a process, waiters for the same site queue on a channel. When the
// Manager has a lock directory, the holder additionally takes an exclusive
// flock on {dir}/{site}.lock, so that the API and a separately running
// backup scheduler never work on the same site at once.
package sitelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval is how often a contended file lock is retried.
const pollInterval = 50 * time.Millisecond

type entry struct {
	sem  chan struct{}
	refs int
}

// Manager hands out one lock per site name. Locks on different names never
// block each other. Entries are dropped once nobody holds or waits on them.
type Manager struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*entry
}

// NewManager creates an empty Manager. With a non-empty dir the locks are
// also shared with every other process using the same directory.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, locks: make(map[string]*entry)}
}

// Acquire blocks until the lock for name is held or ctx ends. The returned
// function releases it and must be called exactly once; further calls are
// no-ops.
func (m *Manager) Acquire(ctx context.Context, name string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[name]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.locks[name] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		m.unref(name, e)
		return nil, fmt.Errorf("wait for lock on site %s: %w", name, ctx.Err())
	}

	f, err := m.lockFile(ctx, name)
	if err != nil {
		<-e.sem
		m.unref(name, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if f != nil {
				unix.Flock(int(f.Fd()), unix.LOCK_UN)
				f.Close()
			}
			<-e.sem
			m.unref(name, e)
		})
	}, nil
}

// lockFile takes the cross-process lock for name. It returns a nil file when
// the Manager has no lock directory.
func (m *Manager) lockFile(ctx context.Context, name string) (*os.File, error) {
	if m.dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(m.dir, name+".lock"), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file for site %s: %w", name, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, fmt.Errorf("lock site %s: %w", name, err)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("wait for lock on site %s: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Manager) unref(name string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, name)
	}
}
