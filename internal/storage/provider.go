// Package storage defines the recordings directory abstraction used by the
// local sink and the catalog.
package storage

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RecordingExtensions are the file extensions treated as recordings.
var RecordingExtensions = []string{".webm", ".mp4"}

// IsRecording reports whether name has a recording extension.
func IsRecording(name string) bool {
	return slices.Contains(RecordingExtensions, strings.ToLower(filepath.Ext(name)))
}

// FileMeta describes a stored recording.
type FileMeta struct {
	Path     string
	Checksum string
	Size     int64
	ModTime  time.Time
}

// Provider is the interface for recording file operations.
type Provider interface {
	// List returns metadata for every recording under dir (relative to root).
	List(dir string) ([]FileMeta, error)
	// Stat returns metadata for the file at path (relative to root).
	Stat(path string) (FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to root).
	Move(oldPath, newPath string) error
}
