// Package sse implements a Server-Sent Events broker for live session,
// annotation and upload updates.
package sse

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Event types.
const (
	TypeSessionState       = "session.state"
	TypeSessionTick        = "session.tick"
	TypeAnnotationsChanged = "annotations.changed"
	TypeArtifactCreated    = "artifact.created"
	TypeArtifactDeleted    = "artifact.deleted"
	TypeUploadStatus       = "upload.status"
	TypeRecordingCreated   = "recording.created"
	TypeRecordingUpdated   = "recording.updated"
	TypeRecordingDeleted   = "recording.deleted"
)

var recordingTypes = map[string]string{
	"created": TypeRecordingCreated,
	"updated": TypeRecordingUpdated,
	"deleted": TypeRecordingDeleted,
}

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (e Event) frame() ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, payload), nil
}

const clientBuffer = 64

// hub is the state owned by the broker loop. Only the loop goroutine and the
// ops it runs touch it.
type hub struct {
	clients map[chan []byte]struct{}

	window  time.Duration
	last    time.Time
	pending any
	dirty   bool
	timer   *time.Timer
	fire    <-chan time.Time
}

// send frames e and offers it to every client. Clients whose buffer is full
// miss the event.
func (h *hub) send(e Event) {
	raw, err := e.frame()
	if err != nil {
		return
	}
	for ch := range h.clients {
		select {
		case ch <- raw:
		default:
		}
	}
}

// annotate sends the first change of a window immediately and folds the rest
// into a single trailing event carrying the newest data.
func (h *hub) annotate(data any, now time.Time) {
	h.pending, h.dirty = data, true
	wait := h.window - now.Sub(h.last)
	if wait <= 0 {
		h.flush(now)
		return
	}
	if h.fire != nil {
		return
	}
	if h.timer == nil {
		h.timer = time.NewTimer(wait)
	} else {
		h.timer.Reset(wait)
	}
	h.fire = h.timer.C
}

func (h *hub) flush(now time.Time) {
	h.fire = nil
	if !h.dirty {
		return
	}
	h.last, h.dirty = now, false
	h.send(Event{Type: TypeAnnotationsChanged, Data: h.pending})
	h.pending = nil
}

func (h *hub) shutdown() {
	if h.timer != nil {
		h.timer.Stop()
	}
	for ch := range h.clients {
		close(ch)
	}
	clear(h.clients)
}

// Broker fans events out to SSE clients. A single goroutine owns the client
// set; every public method hands it an op over one ordered channel.
type Broker struct {
	ops     chan func(*hub)
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewBroker creates a broker that sends at most one annotations.changed
// event per throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 100 * time.Millisecond
	}
	b := &Broker{
		ops:     make(chan func(*hub), 256),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go b.loop(&hub{clients: make(map[chan []byte]struct{}), window: throttle})
	return b
}

func (b *Broker) loop(h *hub) {
	defer close(b.stopped)
	for {
		select {
		case <-b.done:
			h.shutdown()
			return
		case op := <-b.ops:
			op(h)
		case now := <-h.fire:
			h.flush(now)
		}
	}
}

// enqueue hands op to the loop. It reports false once the broker is closed.
func (b *Broker) enqueue(op func(*hub)) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.ops <- op:
		return true
	case <-b.stopped:
		return false
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	b.once.Do(func() { close(b.done) })
	<-b.stopped
}

// Subscribe registers a client. The returned channel is closed by
// Unsubscribe or Close, or immediately when the broker is already closed.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	added := make(chan struct{})
	if !b.enqueue(func(h *hub) {
		h.clients[ch] = struct{}{}
		close(added)
	}) {
		close(ch)
		return ch
	}
	select {
	case <-added:
	case <-b.stopped:
		select {
		case <-added:
		default:
			close(ch)
		}
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.enqueue(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	reply := make(chan int, 1)
	if !b.enqueue(func(h *hub) { reply <- len(h.clients) }) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.enqueue(func(h *hub) { h.send(event) })
}

// PublishAnnotations publishes a throttled annotations.changed event. Only
// the latest data inside a throttle window is delivered.
func (b *Broker) PublishAnnotations(data any) {
	b.enqueue(func(h *hub) { h.annotate(data, time.Now()) })
}

// PublishRecordingEvent publishes a catalog change. kind is one of
// "created", "updated" or "deleted"; anything else is dropped.
func (b *Broker) PublishRecordingEvent(kind, filename string) {
	typ, ok := recordingTypes[kind]
	if !ok {
		return
	}
	b.Publish(Event{Type: typ, Data: map[string]string{"filename": filename}})
}
