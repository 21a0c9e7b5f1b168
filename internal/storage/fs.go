package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/starford/screenflowr/internal/checksum"
)

// tempPrefix marks in-flight writes. Temp names never carry a recording
// extension, so List and the catalog watcher skip them.
const tempPrefix = ".screenflowr-tmp-"

// ErrOutsideRoot is returned for paths that are absolute or climb out of the
// recordings directory.
var ErrOutsideRoot = errors.New("storage: path outside recordings root")

// FS implements Provider on a local directory. All access goes through an
// os.Root, so symlinks pointing out of the directory are refused as well.
type FS struct {
	dir  string
	root *os.Root
}

// NewFS opens an existing recordings directory.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if info, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("storage: %s is not a directory", abs)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open root: %w", err)
	}
	return &FS{dir: abs, root: root}, nil
}

// EnsureFS is NewFS that first creates dir and its parents.
func EnsureFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return NewFS(dir)
}

// Root returns the absolute recordings directory.
func (f *FS) Root() string { return f.dir }

// Close releases the directory handle.
func (f *FS) Close() error { return f.root.Close() }

// local converts a caller path into the slash form os.Root expects.
// The empty path names the root itself.
func local(p string) (string, error) {
	if p == "" {
		return ".", nil
	}
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return filepath.ToSlash(filepath.Clean(p)), nil
}

// List returns metadata for every recording below dir.
func (f *FS) List(dir string) ([]FileMeta, error) {
	start, err := local(dir)
	if err != nil {
		return nil, err
	}
	var out []FileMeta
	walk := func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir(), !IsRecording(p):
			return nil
		}
		meta, err := f.meta(p)
		if err == nil {
			out = append(out, meta)
		}
		return err
	}
	if err := fs.WalkDir(f.root.FS(), start, walk); err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", start, err)
	}
	return out, nil
}

// Stat hashes the recording at p.
func (f *FS) Stat(p string) (FileMeta, error) {
	name, err := local(p)
	if err != nil {
		return FileMeta{}, err
	}
	meta, err := f.meta(name)
	if err != nil {
		return FileMeta{}, fmt.Errorf("storage: stat %s: %w", p, err)
	}
	return meta, nil
}

func (f *FS) meta(name string) (FileMeta, error) {
	file, err := f.root.Open(name)
	if err != nil {
		return FileMeta{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return FileMeta{}, err
	}
	sum, n, err := checksum.SumReader(file)
	if err != nil {
		return FileMeta{}, err
	}
	return FileMeta{Path: name, Checksum: sum, Size: n, ModTime: info.ModTime()}, nil
}

// Read loads the whole file at p.
func (f *FS) Read(p string) ([]byte, error) {
	name, err := local(p)
	if err != nil {
		return nil, err
	}
	data, err := f.root.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

// Write replaces p with content. Readers see either the old file or the
// complete new one: content lands in a synced sibling temp file that is then
// renamed over p.
func (f *FS) Write(p string, content []byte) (err error) {
	name, err := local(p)
	if err != nil {
		return err
	}
	parent := path.Dir(name)
	if err := f.root.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", parent, err)
	}

	tmpName := path.Join(parent, tempPrefix+uuid.NewString())
	tmp, err := f.root.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = f.root.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write %s: %w", p, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("storage: sync %s: %w", p, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", p, err)
	}
	if err = f.root.Rename(tmpName, name); err != nil {
		return fmt.Errorf("storage: commit %s: %w", p, err)
	}
	return nil
}

// Delete removes the file at p.
func (f *FS) Delete(p string) error {
	name, err := local(p)
	if err != nil {
		return err
	}
	if err := f.root.Remove(name); err != nil {
		return fmt.Errorf("storage: delete %s: %w", p, err)
	}
	return nil
}

// Move renames from to to, creating to's parent directories.
func (f *FS) Move(from, to string) error {
	src, err := local(from)
	if err != nil {
		return err
	}
	dst, err := local(to)
	if err != nil {
		return err
	}
	if err := f.root.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", path.Dir(dst), err)
	}
	if err := f.root.Rename(src, dst); err != nil {
		return fmt.Errorf("storage: move %s: %w", from, err)
	}
	return nil
}
