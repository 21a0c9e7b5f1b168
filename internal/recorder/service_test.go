package recorder

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/starford/screenflowr/internal/annotation"
	"github.com/starford/screenflowr/internal/apperr"
	"github.com/starford/screenflowr/internal/artifact"
	"github.com/starford/screenflowr/internal/device"
	"github.com/starford/screenflowr/internal/encoder"
	"github.com/starford/screenflowr/internal/render"
	"github.com/starford/screenflowr/internal/session"
	"github.com/starford/screenflowr/internal/sink"
	"github.com/starford/screenflowr/internal/sse"
	"github.com/starford/screenflowr/internal/testutil"
)

type recordedEvents struct {
	mu          sync.Mutex
	events      []sse.Event
	annotations []any
}

func (r *recordedEvents) Publish(e sse.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordedEvents) PublishAnnotations(data any) {
	r.mu.Lock()
	r.annotations = append(r.annotations, data)
	r.mu.Unlock()
}

func (r *recordedEvents) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type memorySink struct {
	mu       sync.Mutex
	uploaded []string
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Upload(_ context.Context, a *artifact.Artifact) (sink.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaded = append(m.uploaded, a.ID)
	return sink.Result{Success: true, Location: "mem://" + a.ID}, nil
}

func (m *memorySink) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.uploaded...)
}

type env struct {
	svc      *Service
	provider *testutil.FakeProvider
	clock    *testutil.ManualClock
	events   *recordedEvents
	sink     *memorySink
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	fonts, err := render.NewFonts()
	if err != nil {
		t.Fatal(err)
	}
	e := &env{
		provider: testutil.NewFakeProvider(),
		clock:    testutil.NewManualClock(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)),
		events:   &recordedEvents{},
		sink:     &memorySink{},
	}
	if cfg.Container == "" {
		cfg.Container = encoder.ContainerWebM
	}
	e.svc = New(cfg, Deps{
		Devices:    device.NewManager(e.provider, device.Flags{Microphone: true}, testutil.Logger()),
		NewEncoder: encoder.NewFactory(cfg.Container, 0, testutil.Logger()),
		Clock:      e.clock,
		Renderer:   render.NewRenderer(64, 48, fonts),
		Sinks:      sink.NewDispatcher(testutil.Logger(), []sink.Sink{e.sink}),
		Events:     e.events,
		Logger:     testutil.Logger(),
	})
	return e
}

func (e *env) feedFrame(t *testing.T) {
	t.Helper()
	ft := e.provider.Feed(device.SourceScreen, device.KindVideo)
	if ft == nil {
		t.Fatal("no screen feed")
	}
	ft.Push([]byte("frame"))
}

func TestRecordLifecycle(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()

	if st := e.svc.Status(); st.State != session.StateIdle || !st.Flags.Microphone {
		t.Fatalf("initial status = %+v", st)
	}
	snap, err := e.svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if snap.State != session.StateRecording || !snap.Devices.Microphone {
		t.Fatalf("snapshot = %+v", snap)
	}
	e.feedFrame(t)
	e.clock.Tick()
	if st := e.svc.Pause(); st.State != session.StatePaused {
		t.Fatalf("pause state = %s", st.State)
	}
	if st := e.svc.Resume(); st.State != session.StateRecording {
		t.Fatalf("resume state = %s", st.State)
	}
	e.clock.Tick()

	a, err := e.svc.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a == nil || a.DurationSeconds != 2 || a.MIMEType != "video/webm;codecs=vp9" {
		t.Fatalf("artifact = %+v", a)
	}
	if got := e.svc.Artifacts(); len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("artifacts = %v", got)
	}
	if e.events.count(sse.TypeArtifactCreated) != 1 {
		t.Error("artifact.created not published")
	}
	if e.events.count(sse.TypeSessionState) < 4 {
		t.Errorf("session.state events = %d", e.events.count(sse.TypeSessionState))
	}
	if e.events.count(sse.TypeSessionTick) != 2 {
		t.Errorf("session.tick events = %d, want 2", e.events.count(sse.TypeSessionTick))
	}
}

func TestStartAfterStopUsesNewSession(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()

	first, _ := e.svc.Start(ctx)
	_, _ = e.svc.Stop(ctx)
	second, err := e.svc.Start(ctx)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if second.ID == first.ID {
		t.Error("expected a fresh session id")
	}
	if _, err := e.svc.Start(ctx); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("start while recording = %v", err)
	}
}

func TestStartFailureKeepsIdle(t *testing.T) {
	e := newEnv(t, Config{})
	e.provider.Deny(device.SourceScreen)

	snap, err := e.svc.Start(context.Background())
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if snap.State != session.StateIdle {
		t.Fatalf("state = %s, want idle", snap.State)
	}

	e.provider.Fail(device.SourceScreen, nil)
	if _, err := e.svc.Start(context.Background()); err != nil {
		t.Fatalf("retry Start: %v", err)
	}
}

func TestStopClearsAnnotations(t *testing.T) {
	e := newEnv(t, Config{ClearAnnotationsOnStop: true})
	ctx := context.Background()
	_, _ = e.svc.Start(ctx)
	if _, err := e.svc.PlaceText(annotation.Pos{X: 4, Y: 20}, "hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if !e.svc.Annotations().State.Empty() {
		t.Error("annotations not cleared on stop")
	}
	if !e.svc.Undo() {
		t.Fatal("clear on stop should be undoable")
	}
	if got := e.svc.Annotations().Counts.Texts; got != 1 {
		t.Errorf("texts after undo = %d, want 1", got)
	}
}

func TestStopKeepsAnnotationsWhenConfigured(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	_, _ = e.svc.Start(ctx)
	_, _ = e.svc.PlaceText(annotation.Pos{X: 4, Y: 20}, "keep")
	_, _ = e.svc.Stop(ctx)
	if e.svc.Annotations().Counts.Texts != 1 {
		t.Error("annotations should survive stop")
	}
}

func TestAutoUpload(t *testing.T) {
	e := newEnv(t, Config{AutoUpload: true})
	ctx := context.Background()
	_, _ = e.svc.Start(ctx)
	a, err := e.svc.Stop(ctx)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, time.Second, func() bool {
		st, _ := e.svc.UploadStatuses(a.ID)
		return len(st) == 1 && st[0].State == sink.StateSuccess
	})
	if ids := e.sink.ids(); len(ids) != 1 || ids[0] != a.ID {
		t.Errorf("uploaded = %v", ids)
	}
}

func TestUploadAndDeleteArtifact(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	_, _ = e.svc.Start(ctx)
	a, _ := e.svc.Stop(ctx)

	statuses, err := e.svc.UploadWait(ctx, a.ID, []string{"memory"})
	if err != nil {
		t.Fatalf("UploadWait: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Location != "mem://"+a.ID {
		t.Errorf("statuses = %+v", statuses)
	}
	if err := e.svc.Upload(ctx, a.ID, []string{"nope"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown sink err = %v", err)
	}
	if got := e.svc.Sinks(); len(got) != 1 || got[0] != "memory" {
		t.Errorf("sinks = %v", got)
	}

	if err := e.svc.DeleteArtifact(a.ID); err != nil {
		t.Fatalf("DeleteArtifact: %v", err)
	}
	if err := e.svc.DeleteArtifact(a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
	if _, err := e.svc.UploadStatuses(a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("statuses of deleted artifact = %v", err)
	}
	if e.events.count(sse.TypeArtifactDeleted) != 1 {
		t.Error("artifact.deleted not published")
	}
}

func TestDeviceTogglesWhileIdle(t *testing.T) {
	e := newEnv(t, Config{})
	flags := e.svc.SetCamera(context.Background(), true)
	if !flags.Camera {
		t.Fatalf("flags = %+v", flags)
	}
	flags = e.svc.SetMicrophone(context.Background(), false)
	if flags.Microphone || !e.svc.Devices().Camera {
		t.Fatalf("flags = %+v", flags)
	}
	if len(e.provider.Acquired(device.SourceCamera)) != 0 {
		t.Error("camera must not be acquired while idle")
	}
}

func TestAnnotationGestureAndRender(t *testing.T) {
	e := newEnv(t, Config{})
	if err := e.svc.SetTool(annotation.Settings{Tool: annotation.ToolRectangle, Color: annotation.Black, Width: 2}); err != nil {
		t.Fatal(err)
	}
	if err := e.svc.BeginGesture(annotation.Pos{X: 5, Y: 5}); err != nil {
		t.Fatal(err)
	}
	e.svc.MoveGesture(annotation.Pos{X: 30, Y: 20})
	if v := e.svc.Annotations(); v.Phase != annotation.PhaseActive || v.Live == nil || v.Live.Shape == nil {
		t.Fatalf("view during gesture = %+v", v)
	}
	c, err := e.svc.CommitGesture()
	if err != nil || c.Shape == nil {
		t.Fatalf("commit = %+v, %v", c, err)
	}
	view := e.svc.Annotations()
	if view.Counts.Shapes != 1 || view.HistoryLen != 1 || view.Canvas.Width != 64 || view.Canvas.Version == 0 {
		t.Errorf("view = %+v", view)
	}

	var buf bytes.Buffer
	if err := e.svc.RenderPNG(&buf); err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, _, _, a := img.At(5, 12).RGBA(); a == 0 {
		t.Error("rectangle edge not painted")
	}

	buf.Reset()
	if err := e.svc.ExportPDF(&buf); err != nil {
		t.Fatalf("ExportPDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Error("not a PDF")
	}

	e.events.mu.Lock()
	n := len(e.events.annotations)
	e.events.mu.Unlock()
	if n != 1 {
		t.Errorf("annotation changes published = %d, want 1", n)
	}

	e.svc.ClearAnnotations()
	if !e.svc.Annotations().State.Empty() {
		t.Error("clear failed")
	}
}

func TestCloseStopsActiveRecording(t *testing.T) {
	e := newEnv(t, Config{})
	_, _ = e.svc.Start(context.Background())
	if err := e.svc.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := e.svc.Status(); st.State != session.StateStopped {
		t.Errorf("state after close = %s", st.State)
	}
	if len(e.svc.Artifacts()) != 1 {
		t.Error("artifact from closing stop not stored")
	}
}
