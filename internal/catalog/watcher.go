package catalog

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/screenflowr/internal/storage"
)

// Change kinds passed to EventCallback.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven catalog change.
type EventCallback func(kind string, filename string)

type watcher struct {
	fsw    *fsnotify.Watcher
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	notify EventCallback

	debounce *time.Timer
}

// Watch watches the recordings root and keeps the catalog in step with files
// added, rewritten, removed or renamed outside the application. It returns
// when ctx is cancelled.
func Watch(ctx context.Context, db *DB, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if cb == nil {
		cb = func(string, string) {}
	}
	w := &watcher{fsw: fsw, db: db, store: store, root: root, logger: logger.With(slog.String("component", "watcher")), notify: cb}
	if err := w.watchTree(root); err != nil {
		return err
	}
	w.debounce = time.NewTimer(reconcileDelay)
	w.debounce.Stop()
	defer w.debounce.Stop()

	w.logger.Info("watching recordings", slog.String("root", root))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil
		case <-w.debounce.C:
			w.reconcile()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", slog.String("error", err.Error()))
		}
	}
}

// handle applies one fsnotify event. New directories are added to the watch
// and trigger a reconcile so files created before the watch landed are seen.
func (w *watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.watchTree(ev.Name); err != nil {
				w.logger.Warn("watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			w.debounce.Reset(reconcileDelay)
			return
		}
	}
	if !storage.IsRecording(ev.Name) {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Has(fsnotify.Create):
		w.upsert(rel, ChangeCreated)
	case ev.Has(fsnotify.Write):
		w.upsert(rel, ChangeUpdated)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.remove(rel)
		// Rename reports only the old name. The new name shows up as a
		// Create if it stays inside the tree; reconcile covers the rest.
		if ev.Has(fsnotify.Rename) {
			w.debounce.Reset(reconcileDelay)
		}
	}
}

func (w *watcher) upsert(rel, kind string) {
	meta, err := w.store.Stat(rel)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("stat recording", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return
	}
	if err := w.db.Record(fromMeta(meta)); err != nil {
		w.logger.Warn("catalog recording", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("recording "+kind, slog.String("path", rel))
	w.notify(kind, rel)
}

func (w *watcher) remove(rel string) {
	if err := w.db.Delete(rel); err != nil {
		w.logger.Warn("uncatalog recording", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("recording deleted", slog.String("path", rel))
	w.notify(ChangeDeleted, rel)
}

// reconcile diffs the catalog against a fresh listing: rows without a file are
// dropped and files that are new or whose checksum moved are recorded.
func (w *watcher) reconcile() {
	known, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: read catalog", slog.String("error", err.Error()))
		return
	}
	onDisk, err := w.store.List("")
	if err != nil {
		w.logger.Warn("reconcile: list recordings", slog.String("error", err.Error()))
		return
	}

	seen := make(map[string]bool, len(onDisk))
	for _, m := range onDisk {
		seen[m.Path] = true
		sum, cataloged := known[m.Path]
		if cataloged && sum == m.Checksum {
			continue
		}
		if w.db.Record(fromMeta(m)) != nil {
			continue
		}
		if cataloged {
			w.notify(ChangeUpdated, m.Path)
		} else {
			w.notify(ChangeCreated, m.Path)
		}
	}
	for p := range known {
		if !seen[p] {
			w.remove(p)
		}
	}
}

// watchTree adds dir and every directory below it.
func (w *watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		return w.fsw.Add(p)
	})
}
