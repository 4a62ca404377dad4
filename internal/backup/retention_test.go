package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestRetention_Sweep(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

	old := filepath.Join(root, "acme_20240302_020000.tar.gz")
	fresh := filepath.Join(root, "acme_20240304_020000.tar.gz")
	oldOther := filepath.Join(root, "notes.txt")
	touch(t, old, now.Add(-8*24*time.Hour))
	touch(t, fresh, now.Add(-6*24*time.Hour))
	touch(t, oldOther, now.Add(-30*24*time.Hour))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "acme"), 0755))

	r := NewRetention(zerolog.Nop(), root, 7)
	r.now = func() time.Time { return now }

	deleted, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{old}, deleted)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, oldOther)
	assert.DirExists(t, filepath.Join(root, "acme"))
}

func TestRetention_Sweep_ExactlyAtCutoffIsKept(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)
	edge := filepath.Join(root, "acme_20240303_020000.tar.gz")
	touch(t, edge, now.Add(-7*24*time.Hour))

	r := NewRetention(zerolog.Nop(), root, 7)
	r.now = func() time.Time { return now }

	deleted, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deleted)
	assert.FileExists(t, edge)
}

func TestRetention_Sweep_MissingRoot(t *testing.T) {
	r := NewRetention(zerolog.Nop(), filepath.Join(t.TempDir(), "missing"), 7)
	deleted, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestRetention_Sweep_CancelledContext(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "acme_20200101_020000.tar.gz"), time.Now().Add(-365*24*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRetention(zerolog.Nop(), root, 7).Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
