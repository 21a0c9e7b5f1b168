package catalog

import (
	"log/slog"

	"github.com/starford/screenflowr/internal/storage"
)

// Sync walks the recordings directory and brings the catalog up to date:
//   - new or changed files are upserted
//   - rows whose file is gone are deleted
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if cs, ok := checksums[m.Path]; ok && cs == m.Checksum {
			continue
		}
		if err := db.Record(fromMeta(m)); err != nil {
			logger.Warn("sync: record failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: recorded", slog.String("path", m.Path))
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.Delete(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}
	return nil
}

// fromMeta builds a row for a file found on disk. Artifact fields are left
// empty so that Record keeps whatever the saving sink stored.
func fromMeta(m storage.FileMeta) Recording {
	return Recording{
		Filename:  m.Path,
		Checksum:  m.Checksum,
		Size:      m.Size,
		MIMEType:  MIMEForFilename(m.Path),
		CreatedAt: m.ModTime.UTC(),
		SavedAt:   m.ModTime.UTC(),
	}
}
