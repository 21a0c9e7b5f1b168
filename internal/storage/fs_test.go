package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/screenflowr/internal/checksum"
)

func tempRecordings(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRecordings(t)
	content := []byte("\x1a\x45\xdf\xa3payload")
	if err := s.Write("clip.webm", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("clip.webm")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempRecordings(t)
	if err := s.Write("2026/10/c.mp4", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("2026/10/c.mp4")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempRecordings(t)
	_ = s.Write("del.webm", []byte("bye"))
	if err := s.Delete("del.webm"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.webm"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestMove(t *testing.T) {
	s := tempRecordings(t)
	_ = s.Write("old.webm", []byte("data"))
	if err := s.Move("old.webm", "archive/new.webm"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read("archive/new.webm")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read("old.webm"); err == nil {
		t.Error("old path should not exist")
	}
}

func TestListOnlyRecordings(t *testing.T) {
	s := tempRecordings(t)
	_ = s.Write("a.webm", []byte("a"))
	_ = s.Write("sub/b.MP4", []byte("bb"))
	_ = s.Write("notes.txt", []byte("not a recording"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	byPath := map[string]FileMeta{}
	for _, m := range items {
		byPath[m.Path] = m
	}
	a, ok := byPath["a.webm"]
	if !ok {
		t.Fatalf("a.webm missing from %v", items)
	}
	if a.Size != 1 || a.Checksum != checksum.Sum([]byte("a")) {
		t.Errorf("a.webm meta = %+v", a)
	}
	if b := byPath["sub/b.MP4"]; b.Size != 2 {
		t.Errorf("sub/b.MP4 meta = %+v", b)
	}
}

func TestStat(t *testing.T) {
	s := tempRecordings(t)
	_ = s.Write("x.webm", []byte("xyz"))
	meta, err := s.Stat("x.webm")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if meta.Path != "x.webm" || meta.Size != 3 || meta.Checksum != checksum.Sum([]byte("xyz")) {
		t.Errorf("meta = %+v", meta)
	}
	if meta.ModTime.IsZero() {
		t.Error("mod time not set")
	}
	if _, err := s.Stat("missing.webm"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRecordings(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.webm",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Write(%q) = %v, want ErrOutsideRoot", p, err)
		}
	}
}

func TestSymlinkEscapeBlocked(t *testing.T) {
	s := tempRecordings(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.webm"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(s.Root(), "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := s.Read("link/secret.webm"); err == nil {
		t.Error("read through escaping symlink succeeded")
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	s := tempRecordings(t)
	_ = s.Write("atomic.webm", []byte("original"))
	if err := s.Write("atomic.webm", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.webm")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), tempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestIsRecording(t *testing.T) {
	for name, want := range map[string]bool{
		"a.webm":    true,
		"b.mp4":     true,
		"C.WEBM":    true,
		"d.mkv":     false,
		"notes.txt": false,
		"webm":      false,
	} {
		if got := IsRecording(name); got != want {
			t.Errorf("IsRecording(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestEnsureFS_CreatesDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "recordings", "nested")
	s, err := EnsureFS(root)
	if err != nil {
		t.Fatalf("EnsureFS: %v", err)
	}
	if info, err := os.Stat(s.Root()); err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "screenflowr-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
