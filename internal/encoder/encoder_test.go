package encoder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/starford/screenflowr/internal/apperr"
	"github.com/starford/screenflowr/internal/device"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type collector struct {
	mu     sync.Mutex
	chunks []Chunk
}

func (c *collector) deliver(ch Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, ch)
}

func (c *collector) payload() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var buf bytes.Buffer
	for _, ch := range c.chunks {
		buf.Write(ch.Data)
	}
	return buf.Bytes()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

func eventually(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestChunkedOrderAndFlushOnStop(t *testing.T) {
	video := device.NewFeedTrack(device.SourceScreen, device.KindVideo)
	audio := device.NewFeedTrack(device.SourceMicrophone, device.KindAudio)
	enc := NewChunked(ContainerWebM, 0, discardLogger())
	col := &collector{}
	if err := enc.Start([]device.Track{video, audio}, col.deliver); err != nil {
		t.Fatal(err)
	}

	for _, s := range []string{"v1", "v2", "v3"} {
		video.Push([]byte(s))
	}
	audio.Push([]byte("a1"))

	if err := enc.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if col.len() != 1 || col.chunks[0].Seq != 1 {
		t.Fatalf("chunks = %+v, want one chunk with seq 1", col.chunks)
	}

	c, packets, err := Parse(col.payload())
	if err != nil {
		t.Fatal(err)
	}
	if c != ContainerWebM {
		t.Errorf("container = %s", c)
	}
	var videoData []string
	for _, p := range packets {
		if p.Kind == device.KindVideo {
			videoData = append(videoData, string(p.Data))
		}
	}
	if len(packets) != 4 || len(videoData) != 3 || videoData[0] != "v1" || videoData[2] != "v3" {
		t.Fatalf("packets = %+v", packets)
	}
	for _, p := range packets {
		if want := map[device.TrackKind]uint8{device.KindVideo: 0, device.KindAudio: 1}[p.Kind]; p.Track != want {
			t.Errorf("%s packet on track %d, want %d", p.Kind, p.Track, want)
		}
	}
}

func TestStopKeepsCapturedSamples(t *testing.T) {
	for i := 0; i < 100; i++ {
		video := device.NewFeedTrack(device.SourceScreen, device.KindVideo)
		enc := NewChunked(ContainerWebM, 0, discardLogger())
		col := &collector{}
		if err := enc.Start([]device.Track{video}, col.deliver); err != nil {
			t.Fatal(err)
		}
		video.Push([]byte("f1"))
		video.Push([]byte("f2"))
		if err := enc.Stop(context.Background()); err != nil {
			t.Fatal(err)
		}

		_, packets, err := Parse(col.payload())
		if err != nil {
			t.Fatal(err)
		}
		if len(packets) != 2 || string(packets[0].Data) != "f1" || string(packets[1].Data) != "f2" {
			t.Fatalf("run %d: packets = %+v, want f1 and f2", i, packets)
		}
	}
}

func TestChunkedTimeslice(t *testing.T) {
	video := device.NewFeedTrack(device.SourceScreen, device.KindVideo)
	enc := NewChunked(ContainerMP4, 10*time.Millisecond, discardLogger())
	col := &collector{}
	if err := enc.Start([]device.Track{video}, col.deliver); err != nil {
		t.Fatal(err)
	}
	delivered := func(n int) func() bool {
		return func() bool {
			_, packets, err := Parse(col.payload())
			return err == nil && len(packets) == n
		}
	}
	video.Push([]byte("one"))
	eventually(t, 2*time.Second, delivered(1))
	video.Push([]byte("two"))
	eventually(t, 2*time.Second, delivered(2))
	if col.len() < 2 {
		t.Fatalf("chunks = %d, want a flush per timeslice", col.len())
	}

	if err := enc.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i, ch := range col.chunks {
		if ch.Seq != i+1 {
			t.Fatalf("chunk %d seq = %d", i, ch.Seq)
		}
	}
	_, packets, err := Parse(col.payload())
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 2 || string(packets[1].Data) != "two" {
		t.Fatalf("packets = %+v", packets)
	}
	if enc.MIMEType() != "video/mp4" {
		t.Errorf("mime = %s", enc.MIMEType())
	}
}

func TestChunkedPauseDropsSamples(t *testing.T) {
	video := device.NewFeedTrack(device.SourceScreen, device.KindVideo)
	enc := NewChunked(ContainerWebM, 0, discardLogger())
	col := &collector{}
	if err := enc.Start([]device.Track{video}, col.deliver); err != nil {
		t.Fatal(err)
	}
	enc.Pause()
	video.Push([]byte("hidden"))
	eventually(t, 2*time.Second, func() bool { return len(video.Samples()) == 0 && len(enc.in) == 0 })
	time.Sleep(20 * time.Millisecond)
	enc.Resume()
	video.Push([]byte("shown"))
	eventually(t, 2*time.Second, func() bool { return len(video.Samples()) == 0 && len(enc.in) == 0 })
	time.Sleep(20 * time.Millisecond)

	if err := enc.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, packets, err := Parse(col.payload())
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 1 || string(packets[0].Data) != "shown" {
		t.Fatalf("packets = %+v, want only the sample captured after resume", packets)
	}
}

func TestChunkedZeroSamples(t *testing.T) {
	video := device.NewFeedTrack(device.SourceScreen, device.KindVideo)
	enc := NewChunked(ContainerWebM, time.Second, discardLogger())
	col := &collector{}
	if err := enc.Start([]device.Track{video}, col.deliver); err != nil {
		t.Fatal(err)
	}
	if err := enc.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	c, packets, err := Parse(col.payload())
	if err != nil || c != ContainerWebM || len(packets) != 0 {
		t.Fatalf("parse = %s %v %v", c, packets, err)
	}
}

func TestChunkedAddTrack(t *testing.T) {
	video := device.NewFeedTrack(device.SourceScreen, device.KindVideo)
	enc := NewChunked(ContainerWebM, 0, discardLogger())
	col := &collector{}
	if err := enc.Start([]device.Track{video}, col.deliver); err != nil {
		t.Fatal(err)
	}
	mic := device.NewFeedTrack(device.SourceMicrophone, device.KindAudio)
	enc.AddTrack(mic)
	mic.Push([]byte("late audio"))
	eventually(t, 2*time.Second, func() bool { return len(mic.Samples()) == 0 && len(enc.in) == 0 })
	time.Sleep(20 * time.Millisecond)

	if err := enc.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, packets, _ := Parse(col.payload())
	if len(packets) != 1 || packets[0].Kind != device.KindAudio || packets[0].Track != 1 {
		t.Fatalf("packets = %+v", packets)
	}
}

func TestChunkedErrors(t *testing.T) {
	enc := NewChunked(ContainerWebM, 0, discardLogger())
	if err := enc.Stop(context.Background()); !errors.Is(err, apperr.ErrEncoderFailure) {
		t.Errorf("stop before start = %v", err)
	}
	audio := device.NewFeedTrack(device.SourceMicrophone, device.KindAudio)
	if err := enc.Start([]device.Track{audio}, func(Chunk) {}); !errors.Is(err, apperr.ErrEncoderFailure) {
		t.Errorf("start without video = %v", err)
	}
	if _, err := ParseContainer("avi"); err == nil {
		t.Error("ParseContainer accepted avi")
	}
	if _, _, err := Parse([]byte("garbage")); !errors.Is(err, ErrMalformed) {
		t.Errorf("Parse(garbage) = %v", err)
	}
}
