package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/screenflowr/internal/storage"
)

func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(kind, name string) {
	l.mu.Lock()
	l.events = append(l.events, kind+":"+name)
	l.mu.Unlock()
}

func (l *eventLog) has(e string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.events {
		if got == e {
			return true
		}
	}
	return false
}

func startWatch(t *testing.T, dir string, store storage.Provider, db *DB) *eventLog {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := &eventLog{}
	go Watch(ctx, db, store, dir, quietLogger(), log.add)
	time.Sleep(100 * time.Millisecond)
	return log
}

func hasRow(db *DB, name string) bool {
	_, err := db.Get(name)
	return err == nil
}

func TestWatcher_NewRecordingCataloged(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	log := startWatch(t, dir, store, db)

	_ = os.WriteFile(filepath.Join(dir, "clip.webm"), []byte("clip"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return hasRow(db, "clip.webm")
	}, "new recording not cataloged")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return log.has("created:clip.webm")
	}, "expected created:clip.webm event")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	startWatch(t, dir, store, db)

	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "marker.webm"), []byte("m"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return hasRow(db, "marker.webm")
	}, "marker not cataloged")
	if hasRow(db, "notes.txt") {
		t.Error("non-recording file cataloged")
	}
}

func TestWatcher_DeleteRemovesRow(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	_ = store.Write("gone.mp4", []byte("bye"))
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	log := startWatch(t, dir, store, db)

	_ = os.Remove(filepath.Join(dir, "gone.mp4"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !hasRow(db, "gone.mp4")
	}, "deleted recording still cataloged")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return log.has("deleted:gone.mp4")
	}, "expected deleted:gone.mp4 event")
}

func TestWatcher_RenameMovesRow(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	_ = store.Write("old.webm", []byte("data"))
	_ = Sync(db, store, quietLogger())
	startWatch(t, dir, store, db)

	_ = os.Rename(filepath.Join(dir, "old.webm"), filepath.Join(dir, "new.webm"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !hasRow(db, "old.webm") && hasRow(db, "new.webm")
	}, "rename not reflected in catalog")
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	startWatch(t, dir, store, db)

	sub := filepath.Join(dir, "archive")
	_ = os.MkdirAll(sub, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "late.webm"), []byte("late"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return hasRow(db, "archive/late.webm")
	}, "recording in new subdirectory not cataloged")
}

func TestWatcher_AtomicWriteCataloged(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	startWatch(t, dir, store, db)

	if err := store.Write("saved.webm", []byte("atomic")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		r, err := db.Get("saved.webm")
		return err == nil && r.Size == int64(len("atomic"))
	}, "atomically written recording not cataloged")
}
