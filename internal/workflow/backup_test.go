package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/sitehost/internal/executor"
	"github.com/edvin/sitehost/internal/model"
)

func TestBackupSite(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "acme")

	rec, err := env.orch.BackupSite(context.Background(), "acme", true)
	require.NoError(t, err)

	assert.Equal(t, "acme_20240101_020000.tar.gz", rec.ArchiveName)
	assert.Equal(t, filepath.Join(env.backupRoot, "acme_20240101_020000.tar.gz"), rec.ArchivePath)
	assert.Equal(t, model.UploadNotApplicable, rec.UploadState)
	assert.True(t, rec.CreatedAt.Equal(fixedTime))
	assert.FileExists(t, rec.ArchivePath)

	assert.Equal(t, []string{
		"--site", "acme", "backup", "--with-files",
		"--backup-path", filepath.Join(env.backupRoot, "acme"),
	}, env.bench.call(0).Args)

	_, ok := env.orch.status["acme"]
	assert.False(t, ok, "transient status must be cleared")
}

func TestBackupSite_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orch.BackupSite(context.Background(), "ghost", false)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrBackupFailed)
	assert.Empty(t, env.bench.subcommands())
}

func TestBackupSite_SnapshotFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "acme")
	env.bench.on("backup", failWith(1, "mysqldump: Got error: 2013"))

	_, err := env.orch.BackupSite(context.Background(), "acme", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackupFailed)
	assert.ErrorIs(t, err, executor.ErrStepFailed)
	assert.Contains(t, err.Error(), "2013")

	entries, err := os.ReadDir(env.backupRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "no archive may be left behind")
}

func TestBackupSite_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "acme")
	env.orch.backups = nil

	_, err := env.orch.BackupSite(context.Background(), "acme", false)
	assert.ErrorIs(t, err, ErrBackupFailed)
}

func TestListBackups(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "acme")

	_, err := env.orch.BackupSite(context.Background(), "acme", false)
	require.NoError(t, err)

	recs, err := env.orch.ListBackups(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "acme_20240101_020000.tar.gz", recs[0].ArchiveName)

	recs, err = env.orch.ListBackups(context.Background(), "other")
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}
