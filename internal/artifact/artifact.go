// Package artifact holds finished recordings in memory.
package artifact

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/screenflowr/internal/apperr"
)

// Artifact is a finished recording. It is immutable once created; callers
// must not modify Payload.
type Artifact struct {
	ID              string    `json:"id"`
	Payload         []byte    `json:"-"`
	MIMEType        string    `json:"mime_type"`
	Extension       string    `json:"extension"`
	CreatedAt       time.Time `json:"created_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// New creates an artifact with a fresh id.
func New(payload []byte, mimeType, extension string, createdAt time.Time, durationSeconds int) *Artifact {
	return &Artifact{
		ID:              uuid.NewString(),
		Payload:         payload,
		MIMEType:        mimeType,
		Extension:       extension,
		CreatedAt:       createdAt.UTC(),
		DurationSeconds: durationSeconds,
	}
}

// Size returns the payload length in bytes.
func (a *Artifact) Size() int { return len(a.Payload) }

// Filename is the suggested download name, e.g. recording-2024-05-01T10-00-00Z.webm.
func (a *Artifact) Filename() string {
	return fmt.Sprintf("recording-%s.%s", a.CreatedAt.UTC().Format("2006-01-02T15-04-05Z"), a.Extension)
}

// Store is an insertion-ordered collection of artifacts. It does not
// deduplicate or limit size.
type Store struct {
	mu    sync.RWMutex
	items []*Artifact
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Add appends a.
func (s *Store) Add(a *Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, a)
}

// Remove deletes the artifact with id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("artifact %s: %w", id, apperr.ErrNotFound)
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

// Get returns the artifact with id.
func (s *Store) Get(id string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(id)
	if i < 0 {
		return nil, fmt.Errorf("artifact %s: %w", id, apperr.ErrNotFound)
	}
	return s.items[i], nil
}

// List returns the artifacts in insertion order.
func (s *Store) List() []*Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Len returns the number of artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.items, func(a *Artifact) bool { return a.ID == id })
}
