package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/screenflowr/internal/apperr"
)

// Stream groups the tracks produced by one device acquisition.
type Stream struct {
	id     string
	source Source
	tracks []Track
	once   sync.Once
}

// NewStream wraps tracks captured from source.
func NewStream(source Source, tracks ...Track) *Stream {
	return &Stream{id: uuid.NewString(), source: source, tracks: tracks}
}

// ID returns the stream id.
func (s *Stream) ID() string { return s.id }

// Source returns the device the stream was acquired from.
func (s *Stream) Source() Source { return s.source }

// Tracks returns a copy of every track in the stream.
func (s *Stream) Tracks() []Track { return append([]Track(nil), s.tracks...) }

// AudioTracks returns the audio tracks in acquisition order.
func (s *Stream) AudioTracks() []Track { return s.byKind(KindAudio) }

// VideoTracks returns the video tracks in acquisition order.
func (s *Stream) VideoTracks() []Track { return s.byKind(KindVideo) }

func (s *Stream) byKind(k TrackKind) []Track {
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track. Safe to call more than once.
func (s *Stream) Stop() {
	s.once.Do(func() {
		for _, t := range s.tracks {
			t.Stop()
		}
	})
}

// Provider acquires device streams. Implementations return errors wrapping
// apperr.ErrPermissionDenied or apperr.ErrDeviceUnavailable.
type Provider interface {
	Screen(ctx context.Context) (*Stream, error)
	Camera(ctx context.Context) (*Stream, error)
	Microphone(ctx context.Context) (*Stream, error)
}

// Flags are the optional device toggles.
type Flags struct {
	Camera     bool `json:"camera"`
	Microphone bool `json:"microphone"`
}

// Manager acquires and releases device streams and holds the camera and
// microphone toggles. Screen failures are fatal to the caller; camera and
// microphone failures are logged and degrade to no stream.
type Manager struct {
	provider Provider
	logger   *slog.Logger

	mu    sync.Mutex
	flags Flags
}

// NewManager creates a manager with the initial toggles.
func NewManager(provider Provider, flags Flags, logger *slog.Logger) *Manager {
	return &Manager{provider: provider, flags: flags, logger: logger}
}

// Flags returns the current toggles.
func (m *Manager) Flags() Flags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags
}

// SetCamera sets the camera toggle.
func (m *Manager) SetCamera(enabled bool) {
	m.mu.Lock()
	m.flags.Camera = enabled
	m.mu.Unlock()
}

// SetMicrophone sets the microphone toggle.
func (m *Manager) SetMicrophone(enabled bool) {
	m.mu.Lock()
	m.flags.Microphone = enabled
	m.mu.Unlock()
}

// AcquireScreen requests the screen stream with audio. The error wraps
// apperr.ErrPermissionDenied or apperr.ErrDeviceUnavailable.
func (m *Manager) AcquireScreen(ctx context.Context) (*Stream, error) {
	s, err := m.provider.Screen(ctx)
	if err != nil {
		return nil, classify(SourceScreen, err)
	}
	return s, nil
}

// AcquireCamera returns the camera stream, or nil when disabled or unavailable.
func (m *Manager) AcquireCamera(ctx context.Context, enabled bool) *Stream {
	return m.acquireOptional(ctx, SourceCamera, enabled, m.provider.Camera)
}

// AcquireMicrophone returns the microphone stream, or nil when disabled or
// unavailable.
func (m *Manager) AcquireMicrophone(ctx context.Context, enabled bool) *Stream {
	return m.acquireOptional(ctx, SourceMicrophone, enabled, m.provider.Microphone)
}

func (m *Manager) acquireOptional(ctx context.Context, source Source, enabled bool, acquire func(context.Context) (*Stream, error)) *Stream {
	if !enabled {
		return nil
	}
	s, err := acquire(ctx)
	if err != nil {
		m.logger.Warn("device: continuing without optional device",
			slog.String("source", string(source)),
			slog.String("error", classify(source, err).Error()))
		return nil
	}
	return s
}

// Release stops every given stream. Nil and already stopped streams are ignored.
func (m *Manager) Release(streams ...*Stream) {
	for _, s := range streams {
		if s != nil {
			s.Stop()
		}
	}
}

func classify(source Source, err error) error {
	if errors.Is(err, apperr.ErrPermissionDenied) || errors.Is(err, apperr.ErrDeviceUnavailable) {
		return fmt.Errorf("device: %s: %w", source, err)
	}
	return fmt.Errorf("device: %s: %w: %v", source, apperr.ErrDeviceUnavailable, err)
}
