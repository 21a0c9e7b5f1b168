package encoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/screenflowr/internal/apperr"
	"github.com/starford/screenflowr/internal/device"
)

// Chunk is a slice of the payload. Seq starts at 1 and increases by one.
type Chunk struct {
	Seq  int
	Data []byte
}

// Encoder consumes tracks and delivers chunks in capture order.
type Encoder interface {
	// Start begins encoding tracks. deliver is called sequentially from a
	// single goroutine.
	Start(tracks []device.Track, deliver func(Chunk)) error
	// AddTrack attaches a track to a running encoder.
	AddTrack(t device.Track)
	Pause()
	Resume()
	// Stop flushes buffered data and returns once the last chunk was delivered.
	Stop(ctx context.Context) error
	MIMEType() string
}

// Factory creates a fresh encoder per recording.
type Factory func() Encoder

type sample struct {
	track uint8
	kind  device.TrackKind
	data  []byte
}

// Chunked is the built-in Encoder. Every track gets a reader goroutine that
// forwards samples to a single pump; the pump frames them as packets, drops
// them while paused, and flushes a chunk every timeslice (or once at Stop when
// timeslice is zero).
type Chunked struct {
	container Container
	timeslice time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	started  bool
	stopping bool
	paused   bool
	active   time.Duration
	resumed  time.Time
	next     uint8
	readers  sync.WaitGroup
	in       chan sample
	quit     chan struct{}
	done     chan struct{}
	deliver  func(Chunk)
	buf      bytes.Buffer
	seq      int
}

var _ Encoder = (*Chunked)(nil)

// NewChunked creates an encoder for container.
func NewChunked(container Container, timeslice time.Duration, logger *slog.Logger) *Chunked {
	return &Chunked{container: container, timeslice: timeslice, logger: logger}
}

// NewFactory returns a Factory producing Chunked encoders.
func NewFactory(container Container, timeslice time.Duration, logger *slog.Logger) Factory {
	return func() Encoder { return NewChunked(container, timeslice, logger) }
}

// MIMEType returns the container media type.
func (e *Chunked) MIMEType() string { return e.container.MIMEType() }

// Start begins encoding. At least one video track is required.
func (e *Chunked) Start(tracks []device.Track, deliver func(Chunk)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("encoder: already started: %w", apperr.ErrEncoderFailure)
	}
	hasVideo := false
	for _, t := range tracks {
		if t.Kind() == device.KindVideo {
			hasVideo = true
		}
	}
	if !hasVideo {
		return fmt.Errorf("encoder: no video track: %w", apperr.ErrEncoderFailure)
	}

	e.started = true
	e.deliver = deliver
	e.in = make(chan sample, 64)
	e.quit = make(chan struct{})
	e.done = make(chan struct{})
	e.resumed = time.Now()
	e.buf.Write(e.container.signature())

	for _, t := range tracks {
		e.attach(t)
	}
	go e.pump()
	return nil
}

// AddTrack attaches t. It is ignored before Start and after Stop.
func (e *Chunked) AddTrack(t device.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.stopping {
		return
	}
	e.attach(t)
}

// attach must be called with mu held.
func (e *Chunked) attach(t device.Track) {
	idx := e.next
	e.next++
	e.readers.Add(1)
	go e.read(idx, t)
}

// read forwards samples of t until Stop. On Stop it also forwards whatever t
// had already buffered, so frames captured before Stop end up in the payload.
// Sends to in may block: the pump keeps reading until in is closed, which
// happens only after every reader returned.
func (e *Chunked) read(idx uint8, t device.Track) {
	defer e.readers.Done()
	forward := func(data []byte) {
		e.in <- sample{track: idx, kind: t.Kind(), data: data}
	}
	for {
		select {
		case <-e.quit:
			for n := len(t.Samples()); n > 0; n-- {
				data, ok := <-t.Samples()
				if !ok {
					return
				}
				forward(data)
			}
			return
		case data, ok := <-t.Samples():
			if !ok {
				return
			}
			forward(data)
		}
	}
}

// Pause drops incoming samples until Resume.
func (e *Chunked) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.paused {
		return
	}
	e.paused = true
	e.active += time.Since(e.resumed)
}

// Resume accepts samples again.
func (e *Chunked) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || !e.paused {
		return
	}
	e.paused = false
	e.resumed = time.Now()
}

// timestamp returns active milliseconds, or false while paused.
func (e *Chunked) timestamp() (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return 0, false
	}
	return uint32((e.active + time.Since(e.resumed)).Milliseconds()), true
}

func (e *Chunked) pump() {
	defer close(e.done)

	var tick <-chan time.Time
	if e.timeslice > 0 {
		ticker := time.NewTicker(e.timeslice)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case s, ok := <-e.in:
			if !ok {
				e.flush()
				return
			}
			ts, ok := e.timestamp()
			if !ok {
				continue
			}
			appendPacket(&e.buf, Packet{Track: s.track, Kind: s.kind, Timestamp: ts, Data: s.data})
		case <-tick:
			e.flush()
		}
	}
}

// flush is only called from the pump goroutine.
func (e *Chunked) flush() {
	if e.buf.Len() == 0 {
		return
	}
	e.seq++
	data := bytes.Clone(e.buf.Bytes())
	e.buf.Reset()
	e.deliver(Chunk{Seq: e.seq, Data: data})
}

// Stop stops reading tracks, drains queued samples, flushes the final chunk
// and waits for its delivery. Tracks themselves are not stopped.
func (e *Chunked) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return fmt.Errorf("encoder: not started: %w", apperr.ErrEncoderFailure)
	}
	if e.stopping {
		e.mu.Unlock()
		return fmt.Errorf("encoder: already stopped: %w", apperr.ErrEncoderFailure)
	}
	e.stopping = true
	e.mu.Unlock()

	close(e.quit)
	e.readers.Wait()
	close(e.in)

	select {
	case <-e.done:
		e.logger.Debug("encoder: stopped", slog.Int("chunks", e.seq))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("encoder: finalize: %w: %v", apperr.ErrEncoderFailure, ctx.Err())
	}
}
