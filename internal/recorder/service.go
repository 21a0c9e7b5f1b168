// Package recorder is the application service: it owns the device manager,
// the current recording session, the annotation layer, the finished
// artifacts and the upload dispatcher, and publishes their events.
package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/screenflowr/internal/annotation"
	"github.com/starford/screenflowr/internal/artifact"
	"github.com/starford/screenflowr/internal/device"
	"github.com/starford/screenflowr/internal/encoder"
	"github.com/starford/screenflowr/internal/export"
	"github.com/starford/screenflowr/internal/render"
	"github.com/starford/screenflowr/internal/session"
	"github.com/starford/screenflowr/internal/sink"
	"github.com/starford/screenflowr/internal/sse"
)

// Events receives everything the service publishes. *sse.Broker satisfies it.
type Events interface {
	Publish(sse.Event)
	PublishAnnotations(data any)
}

type noEvents struct{}

func (noEvents) Publish(sse.Event)      {}
func (noEvents) PublishAnnotations(any) {}

// Config holds the recording behaviour switches.
type Config struct {
	Container              encoder.Container
	ClearAnnotationsOnStop bool
	AutoUpload             bool
}

// Deps are the collaborators of a Service.
type Deps struct {
	Devices    *device.Manager
	NewEncoder encoder.Factory
	Clock      session.Clock
	Renderer   *render.Renderer
	Artifacts  *artifact.Store
	Sinks      *sink.Dispatcher
	Events     Events
	Logger     *slog.Logger
	// AnnotationOptions are applied to the annotation controller before
	// the canvas and change listener are attached.
	AnnotationOptions []annotation.ControllerOption
}

// Service coordinates recording, annotation and artifact operations.
type Service struct {
	cfg        Config
	devices    *device.Manager
	newEncoder encoder.Factory
	clock      session.Clock
	artifacts  *artifact.Store
	sinks      *sink.Dispatcher
	events     Events
	logger     *slog.Logger

	canvas      *render.Canvas
	annotations *annotation.Controller

	mu      sync.Mutex
	current *session.Session
}

// New creates a service.
func New(cfg Config, deps Deps) *Service {
	if deps.Events == nil {
		deps.Events = noEvents{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = session.SystemClock{}
	}
	if deps.Artifacts == nil {
		deps.Artifacts = artifact.NewStore()
	}
	s := &Service{
		cfg:        cfg,
		devices:    deps.Devices,
		newEncoder: deps.NewEncoder,
		clock:      deps.Clock,
		artifacts:  deps.Artifacts,
		sinks:      deps.Sinks,
		events:     deps.Events,
		logger:     deps.Logger,
		canvas:     render.NewCanvas(deps.Renderer),
	}
	opts := append([]annotation.ControllerOption{}, deps.AnnotationOptions...)
	opts = append(opts, annotation.WithSurface(s.canvas), annotation.WithChangeListener(s.onAnnotationChange))
	s.annotations = annotation.NewController(opts...)
	return s
}

// --- Session ---

// Start begins a new recording. A stopped session is replaced by a fresh
// one; a session that failed to start is reused.
func (s *Service) Start(ctx context.Context) (session.Snapshot, error) {
	s.mu.Lock()
	sess := s.current
	if sess == nil || sess.State() == session.StateStopped {
		sess = session.New(uuid.NewString(), session.Options{
			Devices:    s.devices,
			NewEncoder: s.newEncoder,
			Container:  s.cfg.Container,
			Clock:      s.clock,
			Logger:     s.logger,
			OnEvent:    s.onSessionEvent,
		})
		s.current = sess
	}
	s.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		return sess.Snapshot(), err
	}
	return sess.Snapshot(), nil
}

// Pause pauses the current recording. No-op when not recording.
func (s *Service) Pause() session.Snapshot {
	if sess := s.session(); sess != nil {
		sess.Pause()
	}
	return s.Status()
}

// Resume resumes a paused recording. No-op when not paused.
func (s *Service) Resume() session.Snapshot {
	if sess := s.session(); sess != nil {
		sess.Resume()
	}
	return s.Status()
}

// Stop finalizes the current recording and stores its artifact. It returns
// nil, nil when nothing was recording.
func (s *Service) Stop(ctx context.Context) (*artifact.Artifact, error) {
	sess := s.session()
	if sess == nil {
		return nil, nil
	}
	a, err := sess.Stop(ctx)
	if s.cfg.ClearAnnotationsOnStop && (a != nil || err != nil) && !s.annotations.State().Empty() {
		s.annotations.Clear()
	}
	if err != nil || a == nil {
		return nil, err
	}

	s.artifacts.Add(a)
	s.events.Publish(sse.Event{Type: sse.TypeArtifactCreated, Data: a})

	if s.cfg.AutoUpload && s.sinks != nil {
		if upErr := s.sinks.Upload(ctx, a); upErr != nil {
			s.logger.Warn("recorder: auto upload failed", slog.String("artifact_id", a.ID), slog.String("error", upErr.Error()))
		}
	}
	return a, nil
}

// Status returns the current session snapshot, or an idle one before the
// first recording.
func (s *Service) Status() session.Snapshot {
	if sess := s.session(); sess != nil {
		return sess.Snapshot()
	}
	return session.Snapshot{State: session.StateIdle, Flags: s.devices.Flags()}
}

// Devices returns the optional device flags.
func (s *Service) Devices() device.Flags {
	return s.devices.Flags()
}

// SetCamera toggles the camera, live when recording.
func (s *Service) SetCamera(ctx context.Context, enabled bool) device.Flags {
	if sess := s.session(); sess != nil {
		sess.SetCamera(ctx, enabled)
	} else {
		s.devices.SetCamera(enabled)
	}
	return s.devices.Flags()
}

// SetMicrophone toggles the microphone, live when recording.
func (s *Service) SetMicrophone(ctx context.Context, enabled bool) device.Flags {
	if sess := s.session(); sess != nil {
		sess.SetMicrophone(ctx, enabled)
	} else {
		s.devices.SetMicrophone(enabled)
	}
	return s.devices.Flags()
}

func (s *Service) session() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Service) onSessionEvent(ev session.Event) {
	s.events.Publish(sse.Event{Type: ev.Kind, Data: ev.Snapshot})
}

// --- Artifacts ---

// Artifacts lists finished recordings in creation order.
func (s *Service) Artifacts() []*artifact.Artifact {
	return s.artifacts.List()
}

// Artifact returns one finished recording.
func (s *Service) Artifact(id string) (*artifact.Artifact, error) {
	return s.artifacts.Get(id)
}

// DeleteArtifact drops a finished recording and its upload statuses.
func (s *Service) DeleteArtifact(id string) error {
	if err := s.artifacts.Remove(id); err != nil {
		return err
	}
	if s.sinks != nil {
		s.sinks.Forget(id)
	}
	s.events.Publish(sse.Event{Type: sse.TypeArtifactDeleted, Data: map[string]string{"id": id}})
	return nil
}

// Sinks returns the enabled sink names.
func (s *Service) Sinks() []string {
	if s.sinks == nil {
		return []string{}
	}
	return s.sinks.Names()
}

// Upload starts uploading an artifact to the named sinks (all when empty)
// without waiting.
func (s *Service) Upload(ctx context.Context, id string, sinks []string) error {
	a, err := s.artifacts.Get(id)
	if err != nil {
		return err
	}
	if s.sinks == nil {
		return fmt.Errorf("recorder: no sinks configured")
	}
	return s.sinks.Upload(ctx, a, sinks...)
}

// UploadWait uploads an artifact and waits for every sink to report.
func (s *Service) UploadWait(ctx context.Context, id string, sinks []string) ([]sink.Status, error) {
	a, err := s.artifacts.Get(id)
	if err != nil {
		return nil, err
	}
	if s.sinks == nil {
		return nil, fmt.Errorf("recorder: no sinks configured")
	}
	return s.sinks.UploadWait(ctx, a, sinks...)
}

// UploadStatuses returns the per-sink upload statuses of an artifact.
func (s *Service) UploadStatuses(id string) ([]sink.Status, error) {
	if _, err := s.artifacts.Get(id); err != nil {
		return nil, err
	}
	if s.sinks == nil {
		return []sink.Status{}, nil
	}
	return s.sinks.Statuses(id), nil
}

// Close stops an active recording and waits for uploads in flight.
func (s *Service) Close(ctx context.Context) error {
	if sess := s.session(); sess != nil && sess.State().Active() {
		if _, err := s.Stop(ctx); err != nil {
			s.logger.Warn("recorder: stop on close failed", slog.String("error", err.Error()))
		}
	}
	if s.sinks != nil {
		return s.sinks.Wait(ctx)
	}
	return nil
}

// --- Annotations ---

// CanvasInfo describes the annotation layer raster.
type CanvasInfo struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Version uint64 `json:"version"`
}

// AnnotationView is a read-only view of the annotation layer.
type AnnotationView struct {
	Phase      annotation.Phase    `json:"phase"`
	Settings   annotation.Settings `json:"settings"`
	State      annotation.State    `json:"state"`
	Live       *annotation.Live    `json:"live,omitempty"`
	Counts     annotation.Counts   `json:"counts"`
	HistoryLen int                 `json:"history_len"`
	Canvas     CanvasInfo          `json:"canvas"`
}

// AnnotationChange is published (throttled) after every committed mutation.
type AnnotationChange struct {
	Op      string            `json:"op"`
	Counts  annotation.Counts `json:"counts"`
	Version uint64            `json:"version"`
	At      time.Time         `json:"at"`
}

// Annotations returns the current annotation view.
func (s *Service) Annotations() AnnotationView {
	st := s.annotations.State()
	w, h := s.canvas.Size()
	return AnnotationView{
		Phase:      s.annotations.Phase(),
		Settings:   s.annotations.Settings(),
		State:      st,
		Live:       s.annotations.Live(),
		Counts:     st.Counts(),
		HistoryLen: s.annotations.HistoryLen(),
		Canvas:     CanvasInfo{Width: w, Height: h, Version: s.canvas.Version()},
	}
}

// SetTool replaces the tool settings.
func (s *Service) SetTool(settings annotation.Settings) error {
	return s.annotations.SetSettings(settings)
}

// BeginGesture starts a pointer gesture at p.
func (s *Service) BeginGesture(p annotation.Pos) error { return s.annotations.Begin(p) }

// MoveGesture extends the active gesture.
func (s *Service) MoveGesture(p annotation.Pos) { s.annotations.Move(p) }

// CommitGesture ends the active gesture.
func (s *Service) CommitGesture() (annotation.Committed, error) { return s.annotations.Commit() }

// CancelGesture abandons the active gesture.
func (s *Service) CancelGesture() { s.annotations.Cancel() }

// PlaceText adds a text label; blank text is ignored and reports false.
func (s *Service) PlaceText(p annotation.Pos, text string) (bool, error) {
	return s.annotations.PlaceText(p, text)
}

// Undo reverts the last mutation. It reports false when the history is empty.
func (s *Service) Undo() bool { return s.annotations.Undo() }

// ClearAnnotations empties the layer (undoable).
func (s *Service) ClearAnnotations() { s.annotations.Clear() }

// RenderPNG writes the annotation layer as a transparent PNG.
func (s *Service) RenderPNG(w io.Writer) error {
	return s.canvas.EncodePNG(w)
}

// ExportPDF writes the annotation layer as a single page PDF.
func (s *Service) ExportPDF(w io.Writer) error {
	title := "Annotations " + s.clock.Now().UTC().Format(time.RFC3339)
	return export.PDF(w, s.canvas.Image(), title)
}

func (s *Service) onAnnotationChange(c annotation.Change) {
	s.events.PublishAnnotations(AnnotationChange{
		Op:      c.Op,
		Counts:  c.Counts,
		Version: s.canvas.Version(),
		At:      s.clock.Now().UTC(),
	})
}
