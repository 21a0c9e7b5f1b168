// Package session implements the recording lifecycle:
// idle -> recording -> {paused <-> recording} -> stopped.
package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/screenflowr/internal/apperr"
	"github.com/starford/screenflowr/internal/artifact"
	"github.com/starford/screenflowr/internal/device"
	"github.com/starford/screenflowr/internal/encoder"
)

// State is the lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

// Active reports whether devices are held in this state.
func (s State) Active() bool {
	return s == StateRecording || s == StatePaused
}

// Event kinds passed to Options.OnEvent.
const (
	EventState = "session.state"
	EventTick  = "session.tick"
)

// Event is a state change or counter tick.
type Event struct {
	Kind     string   `json:"kind"`
	Snapshot Snapshot `json:"snapshot"`
}

// Devices reports which streams are currently held.
type Devices struct {
	Screen     bool `json:"screen"`
	Camera     bool `json:"camera"`
	Microphone bool `json:"microphone"`
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID             string       `json:"id"`
	State          State        `json:"state"`
	ElapsedSeconds int          `json:"elapsed_seconds"`
	Flags          device.Flags `json:"flags"`
	Devices        Devices      `json:"devices"`
	Chunks         int          `json:"chunks"`
	Bytes          int          `json:"bytes"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
}

// Options configures a Session.
type Options struct {
	Devices    *device.Manager
	NewEncoder encoder.Factory
	Container  encoder.Container
	Clock      Clock
	Logger     *slog.Logger
	// OnEvent is called outside the session lock.
	OnEvent func(Event)
}

// Session is a single recording. It is not reusable: once stopped, a new
// Session is required.
type Session struct {
	id   string
	opts Options

	mu        sync.Mutex
	state     State
	starting  bool
	stopping  bool
	elapsed   int
	gen       int
	stopTick  func()
	screen    *device.Stream
	camera    *device.Stream
	mic       *device.Stream
	enc       encoder.Encoder
	chunks    [][]byte
	size      int
	startedAt time.Time

	// stamp orders snapshots taken under mu; emit drops any snapshot older
	// than the last one delivered.
	stamp   uint64
	emitMu  sync.Mutex
	emitted uint64
}

type stampedSnapshot struct {
	seq  uint64
	snap Snapshot
}

// New creates an idle session.
func New(id string, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{id: id, opts: opts, state: StateIdle}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// stampLocked takes a snapshot for emit. mu must be held.
func (s *Session) stampLocked() stampedSnapshot {
	s.stamp++
	return stampedSnapshot{seq: s.stamp, snap: s.snapshotLocked()}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:             s.id,
		State:          s.state,
		ElapsedSeconds: s.elapsed,
		Flags:          s.opts.Devices.Flags(),
		Devices: Devices{
			Screen:     s.screen != nil,
			Camera:     s.camera != nil,
			Microphone: s.mic != nil,
		},
		Chunks: len(s.chunks),
		Bytes:  s.size,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	return snap
}

// Start acquires devices and begins recording. It is only accepted from idle;
// otherwise it returns apperr.ErrInvalidTransition. A screen or encoder
// failure leaves the session idle. Camera and microphone are best-effort:
// when they cannot be acquired their flag is switched off.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle || s.starting {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: start from %s: %w", state, apperr.ErrInvalidTransition)
	}
	s.starting = true
	s.mu.Unlock()

	abort := func(err error) error {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		s.opts.Logger.Error("session: start failed", slog.String("session_id", s.id), slog.String("error", err.Error()))
		return err
	}

	devices := s.opts.Devices
	flags := devices.Flags()

	screen, err := devices.AcquireScreen(ctx)
	if err != nil {
		return abort(fmt.Errorf("session: %w", err))
	}
	camera := devices.AcquireCamera(ctx, flags.Camera)
	if flags.Camera && camera == nil {
		devices.SetCamera(false)
	}
	mic := devices.AcquireMicrophone(ctx, flags.Microphone)
	if flags.Microphone && mic == nil {
		devices.SetMicrophone(false)
	}

	// Screen audio and microphone audio go to the encoder as separate tracks.
	// The camera is preview only.
	tracks := screen.Tracks()
	if mic != nil {
		tracks = append(tracks, mic.AudioTracks()...)
	}
	enc := s.opts.NewEncoder()
	if err := enc.Start(tracks, s.deliver); err != nil {
		devices.Release(screen, camera, mic)
		return abort(fmt.Errorf("session: start encoder: %w", err))
	}

	s.mu.Lock()
	s.starting = false
	s.state = StateRecording
	s.screen, s.camera, s.mic = screen, camera, mic
	s.enc = enc
	s.startedAt = s.opts.Clock.Now()
	s.startTicker()
	snap := s.stampLocked()
	s.mu.Unlock()

	s.opts.Logger.Info("session: recording started",
		slog.String("session_id", s.id),
		slog.Bool("camera", camera != nil),
		slog.Bool("microphone", mic != nil))
	s.emit(EventState, snap)
	return nil
}

// Pause suspends encoding and freezes the counter. No-op unless recording.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.state != StateRecording || s.stopping {
		s.mu.Unlock()
		return
	}
	s.enc.Pause()
	s.stopTicker()
	s.state = StatePaused
	snap := s.stampLocked()
	s.mu.Unlock()

	s.emit(EventState, snap)
}

// Resume continues encoding and the counter. No-op unless paused.
func (s *Session) Resume() {
	s.mu.Lock()
	if s.state != StatePaused || s.stopping {
		s.mu.Unlock()
		return
	}
	s.enc.Resume()
	s.startTicker()
	s.state = StateRecording
	snap := s.stampLocked()
	s.mu.Unlock()

	s.emit(EventState, snap)
}

// Stop finalizes the encoder, releases every stream and returns the
// artifact. From idle or stopped it is a no-op returning nil, nil. When the
// encoder fails the session still ends stopped and the error wraps
// apperr.ErrEncoderFailure.
func (s *Session) Stop(ctx context.Context) (*artifact.Artifact, error) {
	s.mu.Lock()
	if !s.state.Active() || s.stopping {
		s.mu.Unlock()
		return nil, nil
	}
	s.stopping = true
	s.stopTicker()
	enc := s.enc
	s.mu.Unlock()

	// Waits for the last chunk to be delivered.
	encErr := enc.Stop(ctx)

	s.mu.Lock()
	s.opts.Devices.Release(s.screen, s.camera, s.mic)
	s.screen, s.camera, s.mic = nil, nil, nil
	s.state = StateStopped
	s.stopping = false
	elapsed := s.elapsed
	payload := bytes.Join(s.chunks, nil)
	s.chunks, s.size = nil, 0
	now := s.opts.Clock.Now()
	snap := s.stampLocked()
	s.mu.Unlock()

	s.emit(EventState, snap)

	if encErr != nil {
		s.opts.Logger.Error("session: finalize failed", slog.String("session_id", s.id), slog.String("error", encErr.Error()))
		return nil, fmt.Errorf("session: stop: %w", encErr)
	}

	a := artifact.New(payload, enc.MIMEType(), s.opts.Container.Extension(), now, elapsed)
	s.opts.Logger.Info("session: recording stopped",
		slog.String("session_id", s.id),
		slog.String("artifact_id", a.ID),
		slog.Int("duration_seconds", elapsed),
		slog.Int("bytes", a.Size()))
	return a, nil
}

// SetCamera toggles the camera. While recording the camera stream is started
// or stopped live; the screen stream is never touched.
func (s *Session) SetCamera(ctx context.Context, enabled bool) {
	s.setOptional(ctx, device.SourceCamera, enabled)
}

// SetMicrophone toggles the microphone. A microphone acquired mid-recording
// is attached to the encoder as a new audio track.
func (s *Session) SetMicrophone(ctx context.Context, enabled bool) {
	s.setOptional(ctx, device.SourceMicrophone, enabled)
}

func (s *Session) setOptional(ctx context.Context, source device.Source, enabled bool) {
	devices := s.opts.Devices
	slot := func() **device.Stream {
		if source == device.SourceCamera {
			return &s.camera
		}
		return &s.mic
	}
	setFlag := devices.SetMicrophone
	acquire := devices.AcquireMicrophone
	if source == device.SourceCamera {
		setFlag = devices.SetCamera
		acquire = devices.AcquireCamera
	}
	setFlag(enabled)

	s.mu.Lock()
	if !s.state.Active() || s.stopping {
		s.mu.Unlock()
		return
	}
	current := *slot()
	if !enabled {
		*slot() = nil
		snap := s.stampLocked()
		s.mu.Unlock()
		if current != nil {
			devices.Release(current)
			s.emit(EventState, snap)
		}
		return
	}
	s.mu.Unlock()
	if current != nil {
		return
	}

	stream := acquire(ctx, true)
	if stream == nil {
		setFlag(false)
		return
	}

	s.mu.Lock()
	if !s.state.Active() || s.stopping || *slot() != nil {
		s.mu.Unlock()
		devices.Release(stream)
		return
	}
	*slot() = stream
	if source == device.SourceMicrophone {
		for _, t := range stream.AudioTracks() {
			s.enc.AddTrack(t)
		}
	}
	snap := s.stampLocked()
	s.mu.Unlock()

	s.emit(EventState, snap)
}

// deliver is the encoder's chunk callback.
func (s *Session) deliver(c encoder.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	s.chunks = append(s.chunks, c.Data)
	s.size += len(c.Data)
}

// startTicker must be called with mu held.
func (s *Session) startTicker() {
	s.gen++
	gen := s.gen
	s.stopTick = s.opts.Clock.Every(time.Second, func() { s.tick(gen) })
}

// stopTicker must be called with mu held.
func (s *Session) stopTicker() {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
	s.gen++
}

func (s *Session) tick(gen int) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateRecording || s.stopping {
		s.mu.Unlock()
		return
	}
	s.elapsed++
	snap := s.stampLocked()
	s.mu.Unlock()

	s.emit(EventTick, snap)
}

func (s *Session) emit(kind string, st stampedSnapshot) {
	if s.opts.OnEvent == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if st.seq <= s.emitted {
		return
	}
	s.emitted = st.seq
	s.opts.OnEvent(Event{Kind: kind, Snapshot: st.snap})
}
