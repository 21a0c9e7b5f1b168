// Package device models capture devices (screen, camera, microphone) as
// streams of tracks and manages their acquisition and release.
package device

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source identifies a capture device.
type Source string

const (
	SourceScreen     Source = "screen"
	SourceCamera     Source = "camera"
	SourceMicrophone Source = "microphone"
)

// TrackKind is the media type carried by a track.
type TrackKind string

const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

// Track is a live media track. Samples is closed once the track stops.
// Stop is idempotent.
type Track interface {
	ID() string
	Kind() TrackKind
	Source() Source
	Samples() <-chan []byte
	Stop()
	Done() <-chan struct{}
}

// trackBufferSize bounds how many samples a track holds for a slow reader.
// Live sources drop samples rather than block.
const trackBufferSize = 16

type baseTrack struct {
	id      string
	kind    TrackKind
	source  Source
	samples chan []byte
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newBaseTrack(source Source, kind TrackKind) *baseTrack {
	return &baseTrack{
		id:      uuid.NewString(),
		kind:    kind,
		source:  source,
		samples: make(chan []byte, trackBufferSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the track id.
func (t *baseTrack) ID() string { return t.id }

// Kind reports whether the track carries video or audio.
func (t *baseTrack) Kind() TrackKind { return t.kind }

// Source returns the device the track belongs to.
func (t *baseTrack) Source() Source { return t.source }

// Samples delivers captured samples. It is closed once the track ends.
func (t *baseTrack) Samples() <-chan []byte { return t.samples }

// Done is closed once the track has ended and Samples is closed.
func (t *baseTrack) Done() <-chan struct{} { return t.done }

// Stop asks the track to end. Safe to call more than once.
func (t *baseTrack) Stop() { t.once.Do(func() { close(t.stop) }) }
func (t *baseTrack) stopped() <-chan struct{} { return t.stop }

// GeneratorTrack emits gen(seq) every interval until stopped.
type GeneratorTrack struct {
	*baseTrack
}

// NewGeneratorTrack starts a track that produces a sample per interval.
func NewGeneratorTrack(source Source, kind TrackKind, interval time.Duration, gen func(seq int) []byte) *GeneratorTrack {
	t := &GeneratorTrack{baseTrack: newBaseTrack(source, kind)}
	go t.run(interval, gen)
	return t
}

func (t *GeneratorTrack) run(interval time.Duration, gen func(seq int) []byte) {
	defer close(t.done)
	defer close(t.samples)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for seq := 0; ; {
		select {
		case <-t.stopped():
			return
		case <-ticker.C:
			select {
			case t.samples <- gen(seq):
			default:
			}
			seq++
		}
	}
}

// FeedTrack is a track whose samples are pushed by the caller.
type FeedTrack struct {
	*baseTrack
	mu     sync.Mutex
	closed bool
}

// NewFeedTrack creates a track fed through Push.
func NewFeedTrack(source Source, kind TrackKind) *FeedTrack {
	return &FeedTrack{baseTrack: newBaseTrack(source, kind)}
}

// Push delivers a sample, blocking while the buffer is full. It reports false
// once the track has stopped.
func (t *FeedTrack) Push(sample []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	select {
	case t.samples <- sample:
		return true
	case <-t.stopped():
		t.finish()
		return false
	}
}

// Stop ends the track and closes Samples.
func (t *FeedTrack) Stop() {
	t.baseTrack.Stop()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finish()
}

func (t *FeedTrack) finish() {
	if t.closed {
		return
	}
	t.closed = true
	close(t.samples)
	close(t.done)
}
