package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/sitehost/internal/model"
)

// BackupSite runs the backup pipeline for a registered site under its lock.
// Scheduled and on-demand backups share this path.
func (o *Orchestrator) BackupSite(ctx context.Context, name string, includeFiles bool) (rec *model.BackupRecord, err error) {
	defer func(start time.Time) { observe("backup", start, err) }(time.Now())

	if o.backups == nil {
		return nil, fmt.Errorf("%w: backups are not configured", ErrBackupFailed)
	}
	release, err := o.lockRegistered(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = context.WithoutCancel(ctx)

	o.setStatus(name, model.StatusBackingUp)
	defer o.clearStatus(name)

	log := o.logger.With().Str("site", name).Logger()
	rec, err = o.backups.Backup(ctx, name, includeFiles)
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}
	log.Info().Str("archive", rec.ArchivePath).Str("upload", string(rec.UploadState)).Msg("backup completed")
	return rec, nil
}

// ListBackups returns the archives on disk for name. Archives of deleted
// sites stay listable until retention removes them.
func (o *Orchestrator) ListBackups(_ context.Context, name string) ([]model.BackupRecord, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if o.backups == nil {
		return []model.BackupRecord{}, nil
	}
	recs, err := o.backups.List(name)
	if err != nil {
		return nil, fmt.Errorf("list backups for %s: %w", name, err)
	}
	if recs == nil {
		recs = []model.BackupRecord{}
	}
	return recs, nil
}
