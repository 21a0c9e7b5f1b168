package artifact

import (
	"errors"
	"testing"
	"time"

	"github.com/starford/screenflowr/internal/apperr"
)

func TestStoreOrderAndRemove(t *testing.T) {
	s := NewStore()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := New([]byte("a"), "video/webm", "webm", now, 1)
	b := New([]byte("b"), "video/webm", "webm", now, 2)
	c := New(nil, "video/webm", "webm", now, 0)
	for _, x := range []*Artifact{a, b, c} {
		s.Add(x)
	}

	if got := ids(s.List()); got != a.ID+b.ID+c.ID {
		t.Fatal("list not in insertion order")
	}
	if err := s.Remove(b.ID); err != nil {
		t.Fatal(err)
	}
	if got := ids(s.List()); got != a.ID+c.ID {
		t.Fatal("remove dropped the wrong artifact")
	}
	if err := s.Remove(b.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second remove = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(b.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("get removed = %v", err)
	}
	if got, _ := s.Get(c.ID); got.Size() != 0 {
		t.Error("empty payload artifact should be kept as-is")
	}
}

func TestListIsACopy(t *testing.T) {
	s := NewStore()
	s.Add(New(nil, "", "webm", time.Now(), 0))
	l := s.List()
	l[0] = nil
	if s.List()[0] == nil {
		t.Fatal("List exposed internal slice")
	}
}

func TestFilename(t *testing.T) {
	a := New(nil, "video/webm;codecs=vp9", "webm", time.Date(2024, 5, 1, 10, 30, 5, 0, time.FixedZone("x", 3600)), 0)
	if got, want := a.Filename(), "recording-2024-05-01T09-30-05Z.webm"; got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
}

func ids(list []*Artifact) string {
	var out string
	for _, a := range list {
		out += a.ID
	}
	return out
}
