// Package backup produces, uploads and expires site backup archives.
//
// A backup is a bench snapshot written into a per-site staging directory,
// packed into one tar.gz under the backup root and optionally copied to
// object storage. The local archive is authoritative: a failed upload is
// recorded on the BackupRecord and never removes it.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/sitehost/internal/executor"
	"github.com/edvin/sitehost/internal/metrics"
	"github.com/edvin/sitehost/internal/model"
)

// ErrEmptySnapshot means the snapshot command succeeded but nothing showed
// up in the staging directory, usually because the runtime writes to a
// different volume than the one mounted at the backup root.
var ErrEmptySnapshot = errors.New("snapshot produced no files")

// PipelineConfig holds the paths and command settings of a Pipeline.
type PipelineConfig struct {
	BenchBin string
	BenchDir string
	// Root is the backup directory as seen by this process.
	Root string
	// RuntimeRoot is the same directory as seen by the bench. Defaults to Root.
	RuntimeRoot string
	Timeout     time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline runs one backup at a time per call. Callers serialize backups of
// the same site.
type Pipeline struct {
	logger   zerolog.Logger
	exec     executor.Executor
	uploader Uploader
	cfg      PipelineConfig
}

// NewPipeline creates a Pipeline. uploader may be nil, in which case every
// record is marked not-applicable.
func NewPipeline(logger zerolog.Logger, exec executor.Executor, uploader Uploader, cfg PipelineConfig) *Pipeline {
	if cfg.RuntimeRoot == "" {
		cfg.RuntimeRoot = cfg.Root
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		logger:   logger.With().Str("component", "backup-pipeline").Logger(),
		exec:     exec,
		uploader: uploader,
		cfg:      cfg,
	}
}

// List returns the archives of site stored under the backup root.
func (p *Pipeline) List(site string) ([]model.BackupRecord, error) {
	return ListArchives(p.cfg.Root, site)
}

// Backup snapshots site, archives the snapshot and uploads the archive when
// an uploader is configured. An error means no archive was produced.
func (p *Pipeline) Backup(ctx context.Context, site string, includeFiles bool) (*model.BackupRecord, error) {
	createdAt := p.cfg.Now().UTC()
	rec := &model.BackupRecord{
		Site:         site,
		CreatedAt:    createdAt,
		IncludeFiles: includeFiles,
		UploadState:  model.UploadNotApplicable,
	}
	if p.uploader != nil {
		rec.UploadState = model.UploadPending
	}

	log := p.logger.With().Str("site", site).Bool("include_files", includeFiles).Logger()

	staging := filepath.Join(p.cfg.Root, site)
	if err := resetDir(staging); err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			log.Warn().Err(err).Str("staging", staging).Msg("failed to clear staging directory")
		}
	}()

	args := []string{"--site", site, "backup"}
	if includeFiles {
		args = append(args, "--with-files")
	}
	args = append(args, "--backup-path", path.Join(p.cfg.RuntimeRoot, site))

	log.Info().Msg("taking snapshot")
	if _, err := executor.Run(ctx, p.exec, "backup", executor.Invocation{
		Command: p.cfg.BenchBin,
		Args:    args,
		WorkDir: p.cfg.BenchDir,
		Timeout: p.cfg.Timeout,
	}); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return nil, fmt.Errorf("read staging directory: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmptySnapshot, staging)
	}

	rec.ArchiveName = ArchiveName(site, createdAt)
	rec.ArchivePath = filepath.Join(p.cfg.Root, rec.ArchiveName)
	size, err := writeArchive(staging, site, rec.ArchivePath)
	if err != nil {
		return nil, err
	}
	rec.SizeBytes = size
	metrics.BackupArchiveBytes.Observe(float64(size))
	log.Info().Str("archive", rec.ArchivePath).Int64("bytes", size).Msg("archive written")

	if p.uploader != nil {
		rec.RemoteKey = RemoteKey(site, rec.ArchiveName)
		if err := p.uploader.Upload(ctx, rec.RemoteKey, rec.ArchivePath); err != nil {
			rec.UploadState = model.UploadFailed
			rec.UploadError = err.Error()
			log.Error().Err(err).Str("key", rec.RemoteKey).Msg("upload failed, keeping local archive")
		} else {
			rec.UploadState = model.UploadUploaded
		}
	}
	metrics.BackupUploadsTotal.WithLabelValues(string(rec.UploadState)).Inc()

	completed := p.cfg.Now().UTC()
	rec.CompletedAt = &completed
	return rec, nil
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear staging directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	return nil
}
