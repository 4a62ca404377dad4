package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/sitehost/internal/metrics"
)

// Retention deletes archives older than a fixed number of days, based on
// file modification time. Upload state plays no part.
type Retention struct {
	logger zerolog.Logger
	root   string
	days   int
	now    func() time.Time
}

// NewRetention creates a Retention over the archives directly under root.
func NewRetention(logger zerolog.Logger, root string, days int) *Retention {
	return &Retention{
		logger: logger.With().Str("component", "backup-retention").Logger(),
		root:   root,
		days:   days,
		now:    time.Now,
	}
}

// Sweep removes expired archives and returns their paths. A file that cannot
// be removed is logged and skipped.
func (r *Retention) Sweep(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := r.now().Add(-time.Duration(r.days) * 24 * time.Hour)
	var deleted []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), archiveExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		p := filepath.Join(r.root, e.Name())
		if err := os.Remove(p); err != nil {
			r.logger.Error().Err(err).Str("archive", p).Msg("failed to delete expired archive")
			continue
		}
		r.logger.Info().Str("archive", p).Time("modified", info.ModTime()).Msg("deleted expired archive")
		deleted = append(deleted, p)
	}

	metrics.RetentionDeletedTotal.Add(float64(len(deleted)))
	return deleted, nil
}
