package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func countType(msgs []string, typ string) int {
	n := 0
	for _, m := range msgs {
		if strings.HasPrefix(m, "event: "+typ+"\n") {
			n++
		}
	}
	return n
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeSessionState, Data: map[string]string{"state": "recording"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: session.state") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"state":"recording"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishAnnotations_Throttled(t *testing.T) {
	b := NewBroker(300 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishAnnotations(map[string]int{"strokes": 1})
	b.PublishAnnotations(map[string]int{"strokes": 2})
	b.PublishAnnotations(map[string]int{"strokes": 3})

	time.Sleep(50 * time.Millisecond)
	first := drain(ch)
	if n := countType(first, TypeAnnotationsChanged); n != 1 {
		t.Fatalf("leading events = %d, want 1: %q", n, first)
	}
	if !strings.Contains(first[0], `"strokes":1`) {
		t.Errorf("leading event = %q", first[0])
	}

	time.Sleep(400 * time.Millisecond)
	trailing := drain(ch)
	if n := countType(trailing, TypeAnnotationsChanged); n != 1 {
		t.Fatalf("trailing events = %d, want 1: %q", n, trailing)
	}
	if !strings.Contains(trailing[0], `"strokes":3`) {
		t.Errorf("trailing event should carry latest data, got %q", trailing[0])
	}
}

func TestPublishRecordingEvent(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRecordingEvent("created", "a.webm")
	b.PublishRecordingEvent("deleted", "b.webm")
	b.PublishRecordingEvent("bogus", "c.webm")

	time.Sleep(50 * time.Millisecond)
	msgs := drain(ch)
	if len(msgs) != 2 {
		t.Fatalf("messages = %q, want 2", msgs)
	}
	if countType(msgs, TypeRecordingCreated) != 1 || countType(msgs, TypeRecordingDeleted) != 1 {
		t.Errorf("unexpected messages %q", msgs)
	}
	if !strings.Contains(msgs[0], `"filename":"a.webm"`) {
		t.Errorf("missing filename in %q", msgs[0])
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeSessionTick, Data: map[string]int{"elapsed_seconds": 1}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if body := w.Body.String(); !strings.Contains(body, "event: session.tick") {
		t.Errorf("handler output missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Buffer capacity is 64; the extra events must not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: TypeSessionTick, Data: i})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: TypeSessionState})
	b.PublishAnnotations(nil)
	b.PublishRecordingEvent("updated", "x.webm")
}
