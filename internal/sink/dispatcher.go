package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/screenflowr/internal/apperr"
	"github.com/starford/screenflowr/internal/artifact"
)

// State is the progress of one artifact on one sink.
type State string

const (
	StatePending   State = "pending"
	StateUploading State = "uploading"
	StateSuccess   State = "success"
	StateError     State = "error"
)

// Status reports the upload of an artifact to a sink.
type Status struct {
	ArtifactID string    `json:"artifact_id"`
	Sink       string    `json:"sink"`
	State      State     `json:"state"`
	Location   string    `json:"location,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatusListener is called after every status change, outside any lock.
type StatusListener func(Status)

// Dispatcher fans artifacts out to registered sinks. Each sink runs in its
// own goroutine and reports independently; one failing never affects the
// others.
type Dispatcher struct {
	logger   *slog.Logger
	listener StatusListener

	mu       sync.Mutex
	sinks    map[string]Sink
	order    []string
	statuses map[string]map[string]Status

	inflight sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithStatusListener sets the status listener.
func WithStatusListener(fn StatusListener) DispatcherOption {
	return func(d *Dispatcher) { d.listener = fn }
}

// NewDispatcher creates a dispatcher with the given sinks registered.
func NewDispatcher(logger *slog.Logger, sinks []Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		logger:   logger,
		sinks:    make(map[string]Sink),
		statuses: make(map[string]map[string]Status),
	}
	for _, o := range opts {
		o(d)
	}
	for _, s := range sinks {
		d.Register(s)
	}
	return d
}

// Register adds s, replacing any sink with the same name.
func (d *Dispatcher) Register(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sinks[s.Name()]; !ok {
		d.order = append(d.order, s.Name())
	}
	d.sinks[s.Name()] = s
}

// Names returns the registered sink names in registration order.
func (d *Dispatcher) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// Upload starts uploading a to the named sinks (every sink when names is
// empty) and returns without waiting. Uploads outlive ctx cancellation.
func (d *Dispatcher) Upload(ctx context.Context, a *artifact.Artifact, names ...string) error {
	targets, err := d.begin(a, names)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	for _, s := range targets {
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			_ = d.run(ctx, a, s)
		}()
	}
	return nil
}

// UploadWait uploads a to the named sinks (every sink when names is empty)
// and waits for all of them. The returned error joins the failures, each
// wrapping apperr.ErrSinkFailure.
func (d *Dispatcher) UploadWait(ctx context.Context, a *artifact.Artifact, names ...string) ([]Status, error) {
	targets, err := d.begin(a, names)
	if err != nil {
		return nil, err
	}
	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, s := range targets {
		d.inflight.Add(1)
		g.Go(func() error {
			defer d.inflight.Done()
			errs[i] = d.run(ctx, a, s)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Status, 0, len(targets))
	d.mu.Lock()
	for _, s := range targets {
		if st, ok := d.statuses[a.ID][s.Name()]; ok {
			out = append(out, st)
		}
	}
	d.mu.Unlock()
	return out, errors.Join(errs...)
}

// Statuses returns the recorded statuses for an artifact in sink order.
func (d *Dispatcher) Statuses(artifactID string) []Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []Status{}
	for _, name := range d.order {
		if st, ok := d.statuses[artifactID][name]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Forget drops the statuses of an artifact.
func (d *Dispatcher) Forget(artifactID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.statuses, artifactID)
}

// Wait blocks until every upload started so far has finished or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin resolves names and marks every target pending. An unknown name
// fails the whole request before anything starts.
func (d *Dispatcher) begin(a *artifact.Artifact, names []string) ([]Sink, error) {
	d.mu.Lock()
	if len(names) == 0 {
		names = d.order
	}
	targets := make([]Sink, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		s, ok := d.sinks[n]
		if !ok {
			d.mu.Unlock()
			return nil, fmt.Errorf("sink %q: %w", n, apperr.ErrNotFound)
		}
		targets = append(targets, s)
	}
	changed := make([]Status, 0, len(targets))
	for _, s := range targets {
		changed = append(changed, d.setLocked(Status{ArtifactID: a.ID, Sink: s.Name(), State: StatePending}))
	}
	d.mu.Unlock()

	for _, st := range changed {
		d.notify(st)
	}
	return targets, nil
}

func (d *Dispatcher) run(ctx context.Context, a *artifact.Artifact, s Sink) error {
	d.set(Status{ArtifactID: a.ID, Sink: s.Name(), State: StateUploading})

	res, err := s.Upload(ctx, a)
	if err == nil && !res.Success {
		err = errors.New("upload not accepted")
	}
	if err != nil {
		err = fmt.Errorf("%s: %w: %w", s.Name(), apperr.ErrSinkFailure, err)
		d.logger.Warn("sink: upload failed",
			slog.String("artifact_id", a.ID),
			slog.String("sink", s.Name()),
			slog.String("error", err.Error()))
		d.set(Status{ArtifactID: a.ID, Sink: s.Name(), State: StateError, Error: err.Error()})
		return err
	}

	d.logger.Info("sink: uploaded",
		slog.String("artifact_id", a.ID),
		slog.String("sink", s.Name()),
		slog.String("location", res.Location))
	d.set(Status{ArtifactID: a.ID, Sink: s.Name(), State: StateSuccess, Location: res.Location})
	return nil
}

// set records progress of a running upload. Updates for an artifact that was
// forgotten meanwhile are dropped, so Forget is final.
func (d *Dispatcher) set(st Status) {
	d.mu.Lock()
	if _, tracked := d.statuses[st.ArtifactID]; !tracked {
		d.mu.Unlock()
		return
	}
	st = d.setLocked(st)
	d.mu.Unlock()
	d.notify(st)
}

func (d *Dispatcher) setLocked(st Status) Status {
	st.UpdatedAt = time.Now().UTC()
	m, ok := d.statuses[st.ArtifactID]
	if !ok {
		m = make(map[string]Status)
		d.statuses[st.ArtifactID] = m
	}
	m[st.Sink] = st
	return st
}

func (d *Dispatcher) notify(st Status) {
	if d.listener != nil {
		d.listener(st)
	}
}
