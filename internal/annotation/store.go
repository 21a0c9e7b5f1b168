package annotation

import (
	"errors"
	"strings"
)

// DefaultHistoryCapacity is the number of undo snapshots kept.
const DefaultHistoryCapacity = 20

// ErrEmptyStroke is returned when committing a stroke with no points.
var ErrEmptyStroke = errors.New("annotation: stroke has no points")

// History is a bounded stack of State snapshots. When full, the oldest
// snapshot is discarded.
type History struct {
	capacity int
	entries  []State
}

// NewHistory creates a history holding at most capacity snapshots.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{capacity: capacity, entries: make([]State, 0, capacity)}
}

// Push records a snapshot.
func (h *History) Push(s State) {
	if len(h.entries) == h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, s)
}

// Pop removes and returns the most recent snapshot.
func (h *History) Pop() (State, bool) {
	if len(h.entries) == 0 {
		return State{}, false
	}
	last := h.entries[len(h.entries)-1]
	h.entries[len(h.entries)-1] = State{}
	h.entries = h.entries[:len(h.entries)-1]
	return last, true
}

// Len returns the number of stored snapshots.
func (h *History) Len() int { return len(h.entries) }

// Capacity returns the maximum number of stored snapshots.
func (h *History) Capacity() int { return h.capacity }

// Store owns the annotation State and its undo history. Every mutation
// snapshots the pre-mutation state first. Store is not safe for concurrent
// use; the Controller serialises access.
type Store struct {
	state   State
	history *History
}

// NewStore creates an empty store with the given undo capacity.
func NewStore(capacity int) *Store {
	return &Store{history: NewHistory(capacity)}
}

// State returns a deep copy of the current state.
func (s *Store) State() State { return s.state.Clone() }

// HistoryLen returns the number of undo snapshots available.
func (s *Store) HistoryLen() int { return s.history.Len() }

func (s *Store) snapshot() {
	s.history.Push(s.state.Clone())
}

// CommitStroke appends a stroke. Strokes without points are rejected.
func (s *Store) CommitStroke(st Stroke) error {
	if len(st.Points) == 0 {
		return ErrEmptyStroke
	}
	s.snapshot()
	s.state.Strokes = append(s.state.Strokes, st.clone())
	return nil
}

// CommitShape appends a shape.
func (s *Store) CommitShape(sh Shape) {
	s.snapshot()
	s.state.Shapes = append(s.state.Shapes, sh)
}

// PlaceText appends a text label. Blank text is ignored and reports false.
func (s *Store) PlaceText(t TextAnnotation) bool {
	if strings.TrimSpace(t.Text) == "" {
		return false
	}
	s.snapshot()
	s.state.Texts = append(s.state.Texts, t)
	return true
}

// Clear snapshots the state and empties all collections.
func (s *Store) Clear() {
	s.snapshot()
	s.state = State{}
}

// Undo restores the most recent snapshot. It reports false when the history
// is empty.
func (s *Store) Undo() bool {
	prev, ok := s.history.Pop()
	if !ok {
		return false
	}
	s.state = prev
	return true
}
