package backup

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/edvin/sitehost/internal/model"
)

const (
	archiveExt        = ".tar.gz"
	archiveTimeLayout = "20060102_150405"
)

// ArchiveName returns the file name of the archive for site taken at t:
// {site}_{YYYYMMDD_HHMMSS}.tar.gz in UTC.
func ArchiveName(site string, t time.Time) string {
	return site + "_" + t.UTC().Format(archiveTimeLayout) + archiveExt
}

// RemoteKey is the object key an archive is uploaded under.
func RemoteKey(site, archiveName string) string {
	return "backups/" + site + "/" + archiveName
}

// parseArchiveName splits an archive file name into its site and timestamp.
// Site names never contain '_', so the last underscore-separated pair is
// always the timestamp.
func parseArchiveName(name string) (string, time.Time, bool) {
	base, ok := strings.CutSuffix(name, archiveExt)
	if !ok || len(base) < len(archiveTimeLayout)+2 {
		return "", time.Time{}, false
	}
	split := len(base) - len(archiveTimeLayout) - 1
	if base[split] != '_' {
		return "", time.Time{}, false
	}
	ts, err := time.ParseInLocation(archiveTimeLayout, base[split+1:], time.UTC)
	if err != nil {
		return "", time.Time{}, false
	}
	return base[:split], ts, true
}

// writeArchive packs srcDir into a gzip-compressed tar at dest. Entries are
// prefixed with prefix/. The archive is assembled in a temp file next to
// dest and renamed into place, so dest never holds a partial archive.
func writeArchive(srcDir, prefix, dest string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create archive temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		return addEntry(tw, path, filepath.ToSlash(filepath.Join(prefix, rel)), d)
	})
	if err != nil {
		return 0, fmt.Errorf("archive %s: %w", srcDir, err)
	}

	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("finish gzip stream: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync archive: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return 0, fmt.Errorf("move archive into place: %w", err)
	}
	committed = true
	return info.Size(), nil
}

func addEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// ListArchives returns the archives stored under root for site, oldest
// first. Upload state is not recorded on disk and is left empty.
func ListArchives(root, site string) ([]model.BackupRecord, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var records []model.BackupRecord
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		owner, ts, ok := parseArchiveName(e.Name())
		if !ok || owner != site {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		records = append(records, model.BackupRecord{
			Site:        site,
			CreatedAt:   ts,
			ArchiveName: e.Name(),
			ArchivePath: filepath.Join(root, e.Name()),
			SizeBytes:   info.Size(),
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}
