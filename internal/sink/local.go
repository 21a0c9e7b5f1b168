package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/screenflowr/internal/artifact"
	"github.com/starford/screenflowr/internal/catalog"
	"github.com/starford/screenflowr/internal/checksum"
	"github.com/starford/screenflowr/internal/storage"
)

// Local saves artifacts into the recordings directory and records each
// save in the catalog. It never touches the network.
type Local struct {
	root    string
	store   storage.Provider
	catalog catalog.Catalog
	logger  *slog.Logger
}

var _ Sink = (*Local)(nil)

// NewLocal creates a local sink writing under root through store. cat may
// be nil, in which case saves are not cataloged.
func NewLocal(root string, store storage.Provider, cat catalog.Catalog, logger *slog.Logger) *Local {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Local{root: root, store: store, catalog: cat, logger: logger}
}

func (l *Local) Name() string { return NameLocal }

// Upload writes the payload atomically. Saving the same artifact twice
// overwrites its earlier copy; a different artifact with a clashing name
// gets the artifact id appended.
func (l *Local) Upload(ctx context.Context, a *artifact.Artifact) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	name, err := l.filename(a)
	if err != nil {
		return Result{}, err
	}
	if err := l.store.Write(name, a.Payload); err != nil {
		return Result{}, fmt.Errorf("local: %w", err)
	}

	if l.catalog != nil {
		err := l.catalog.Record(catalog.Recording{
			Filename:        name,
			ArtifactID:      a.ID,
			Checksum:        checksum.Sum(a.Payload),
			Size:            int64(a.Size()),
			MIMEType:        catalog.MIMEForFilename(name),
			DurationSeconds: a.DurationSeconds,
			CreatedAt:       a.CreatedAt,
			SavedAt:         time.Now().UTC(),
		})
		if err != nil {
			// The file is on disk; the watcher or the next sync catalogs it.
			l.logger.Warn("local: catalog record failed", slog.String("filename", name), slog.String("error", err.Error()))
		}
	}

	loc := (&url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(l.root, name))}).String()
	l.logger.Info("local: saved", slog.String("artifact_id", a.ID), slog.String("filename", name))
	return Result{Success: true, Location: loc}, nil
}

func (l *Local) filename(a *artifact.Artifact) (string, error) {
	if l.catalog != nil {
		saved, err := l.catalog.ByArtifact(a.ID)
		if err != nil {
			return "", fmt.Errorf("local: %w", err)
		}
		if len(saved) > 0 {
			return saved[0].Filename, nil
		}
	}
	name := a.Filename()
	if _, err := l.store.Stat(name); err != nil {
		return name, nil
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + shortID(a.ID) + ext, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
