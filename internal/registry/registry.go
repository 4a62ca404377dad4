// Package registry is the durable list of sites that exist: one name per line
// in a plain text file, in insertion order.
//
// Membership here is the only authoritative existence check. Every mutation
// is a read-modify-write under an in-process mutex and an exclusive flock on
// a sidecar lock file, and the new content replaces the old via rename, so a
// crash leaves either the old or the new list on disk.
package registry

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// ErrCorrupt means the persisted list could not be trusted (duplicates or
// unreadable entries). It is never repaired automatically.
var ErrCorrupt = errors.New("site registry corrupt")

// Registry is a file-backed set of site names.
type Registry struct {
	logger zerolog.Logger
	path   string
	mu     sync.Mutex
}

// New returns a Registry stored at path. The file does not have to exist yet;
// a missing file is an empty registry.
func New(logger zerolog.Logger, path string) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "site-registry").Str("path", path).Logger(),
		path:   path,
	}
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

// List returns all site names in insertion order.
func (r *Registry) List() ([]string, error) {
	var names []string
	err := r.withLock(unix.LOCK_SH, func() error {
		var err error
		names, err = r.read()
		return err
	})
	return names, err
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) (bool, error) {
	names, err := r.List()
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

// Add appends name. Adding a present name is a no-op.
func (r *Registry) Add(name string) error {
	if err := validateEntry(name); err != nil {
		return fmt.Errorf("add %q: %w", name, err)
	}
	return r.withLock(unix.LOCK_EX, func() error {
		names, err := r.read()
		if err != nil {
			return err
		}
		if slices.Contains(names, name) {
			return nil
		}
		if err := r.write(append(names, name)); err != nil {
			return err
		}
		r.logger.Info().Str("site", name).Msg("site registered")
		return nil
	})
}

// Remove deletes name. Removing an absent name is a no-op.
func (r *Registry) Remove(name string) error {
	return r.withLock(unix.LOCK_EX, func() error {
		names, err := r.read()
		if err != nil {
			return err
		}
		idx := slices.Index(names, name)
		if idx < 0 {
			return nil
		}
		if err := r.write(slices.Delete(names, idx, idx+1)); err != nil {
			return err
		}
		r.logger.Info().Str("site", name).Msg("site unregistered")
		return nil
	})
}

// withLock serializes access within the process and, via flock, with other
// processes sharing the file (the scheduler may run separately).
func (r *Registry) withLock(how int, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	lf, err := os.OpenFile(r.path+".lock", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open registry lock: %w", err)
	}
	defer lf.Close()

	if err := unix.Flock(int(lf.Fd()), how); err != nil {
		return fmt.Errorf("lock registry: %w", err)
	}
	defer unix.Flock(int(lf.Fd()), unix.LOCK_UN)

	return fn()
}

func (r *Registry) read() ([]string, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return parse(data)
}

// parse decodes the on-disk form. Blank lines and surrounding whitespace are
// tolerated; anything else that cannot be a site name is corruption.
func parse(data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrCorrupt)
	}

	var names []string
	seen := make(map[string]int)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		if err := validateEntry(name); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorrupt, line, err)
		}
		if first, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q listed on lines %d and %d", ErrCorrupt, name, first, line)
		}
		seen[name] = line
		names = append(names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return names, nil
}

// write replaces the registry file atomically: temp file in the same
// directory, fsync, rename, fsync the directory.
func (r *Registry) write(names []string) error {
	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create registry temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write registry temp file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("chmod registry temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync registry temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}
	committed = true

	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			r.logger.Warn().Err(err).Msg("sync registry directory")
		}
		d.Close()
	}
	return nil
}

func validateEntry(name string) error {
	if name == "" {
		return fmt.Errorf("empty site name")
	}
	for _, c := range name {
		if unicode.IsSpace(c) || unicode.IsControl(c) {
			return fmt.Errorf("site name %q contains whitespace or control characters", name)
		}
	}
	return nil
}
