// Package testutil provides shared test helpers: temporary recording
// directories and catalogs, a manual clock, and an in-memory device provider.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/starford/screenflowr/internal/apperr"
	"github.com/starford/screenflowr/internal/catalog"
	"github.com/starford/screenflowr/internal/device"
	"github.com/starford/screenflowr/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestCatalog creates a temporary SQLite catalog that is automatically cleaned up.
func TestCatalog(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "screenflowr-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRecordings creates a temporary recordings directory with a storage.Provider.
func TestRecordings(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// ManualClock is a clock whose tickers fire only when Tick is called.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	next    int
	tickers map[int]func()
}

// NewManualClock creates a clock set to now.
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now, tickers: make(map[int]func())}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Every registers fn; it runs on each Tick until stopped.
func (c *ManualClock) Every(_ time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.tickers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.tickers, id)
	}
}

// Tick advances the clock by one second and fires every registered ticker.
func (c *ManualClock) Tick() {
	c.mu.Lock()
	c.now = c.now.Add(time.Second)
	ids := make([]int, 0, len(c.tickers))
	for id := range c.tickers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), len(ids))
	for i, id := range ids {
		fns[i] = c.tickers[id]
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Advance moves the clock without firing tickers.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Tickers returns the number of registered tickers.
func (c *ManualClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// FakeProvider is a device.Provider backed by FeedTracks. Errors per source
// can be injected through Fail.
type FakeProvider struct {
	mu       sync.Mutex
	fail     map[device.Source]error
	acquired map[device.Source][]*device.Stream
}

var _ device.Provider = (*FakeProvider)(nil)

// NewFakeProvider creates a provider where every device is available.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		fail:     make(map[device.Source]error),
		acquired: make(map[device.Source][]*device.Stream),
	}
}

// Fail makes acquisitions of src return err. A nil err clears the failure.
func (p *FakeProvider) Fail(src device.Source, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.fail, src)
		return
	}
	p.fail[src] = err
}

// Deny makes src answer with a permission error.
func (p *FakeProvider) Deny(src device.Source) {
	p.Fail(src, apperr.ErrPermissionDenied)
}

// Acquired returns every stream handed out for src.
func (p *FakeProvider) Acquired(src device.Source) []*device.Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*device.Stream(nil), p.acquired[src]...)
}

// Last returns the most recent stream handed out for src, or nil.
func (p *FakeProvider) Last(src device.Source) *device.Stream {
	all := p.Acquired(src)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// Feed returns the FeedTrack of kind in the most recent stream for src.
func (p *FakeProvider) Feed(src device.Source, kind device.TrackKind) *device.FeedTrack {
	s := p.Last(src)
	if s == nil {
		return nil
	}
	for _, t := range s.Tracks() {
		if ft, ok := t.(*device.FeedTrack); ok && t.Kind() == kind {
			return ft
		}
	}
	return nil
}

func (p *FakeProvider) Screen(ctx context.Context) (*device.Stream, error) {
	return p.acquire(ctx, device.SourceScreen, device.KindVideo, device.KindAudio)
}

func (p *FakeProvider) Camera(ctx context.Context) (*device.Stream, error) {
	return p.acquire(ctx, device.SourceCamera, device.KindVideo)
}

func (p *FakeProvider) Microphone(ctx context.Context) (*device.Stream, error) {
	return p.acquire(ctx, device.SourceMicrophone, device.KindAudio)
}

func (p *FakeProvider) acquire(ctx context.Context, src device.Source, kinds ...device.TrackKind) (*device.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[src]; err != nil {
		return nil, err
	}
	tracks := make([]device.Track, len(kinds))
	for i, k := range kinds {
		tracks[i] = device.NewFeedTrack(src, k)
	}
	s := device.NewStream(src, tracks...)
	p.acquired[src] = append(p.acquired[src], s)
	return s, nil
}

// Eventually polls fn until it returns true or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, fn func() bool) {
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
