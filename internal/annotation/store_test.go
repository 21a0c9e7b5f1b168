package annotation

import (
	"encoding/json"
	"errors"
	"testing"
)

func pt(x, y float64) Point {
	return Point{X: x, Y: y, Color: Red, Width: 3}
}

func TestHistoryBound(t *testing.T) {
	s := NewStore(DefaultHistoryCapacity)
	for i := 0; i < 25; i++ {
		if err := s.CommitStroke(Stroke{ID: "s", Tool: ToolPen, Points: []Point{pt(float64(i), 0)}}); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.HistoryLen(); got != 20 {
		t.Fatalf("history len = %d, want 20", got)
	}

	// The oldest five snapshots are gone: undoing everything leaves five strokes.
	for s.Undo() {
	}
	if got := len(s.State().Strokes); got != 5 {
		t.Errorf("strokes after full undo = %d, want 5", got)
	}
}

func TestUndoRoundTrip(t *testing.T) {
	s := NewStore(DefaultHistoryCapacity)
	mutations := []func(){
		func() { _ = s.CommitStroke(Stroke{Tool: ToolPen, Points: []Point{pt(1, 1), pt(2, 2)}}) },
		func() { s.CommitShape(Shape{Kind: ShapeCircle, End: Pos{X: 3, Y: 4}}) },
		func() { s.PlaceText(TextAnnotation{Text: "hi"}) },
		func() { s.Clear() },
		func() { s.CommitShape(Shape{Kind: ShapeArrow}) },
	}
	for _, m := range mutations {
		m()
	}
	for i := range mutations {
		if !s.Undo() {
			t.Fatalf("undo %d reported nothing to undo", i)
		}
	}
	if !s.State().Empty() {
		t.Fatalf("state not empty after undo: %+v", s.State().Counts())
	}
	if s.Undo() {
		t.Error("extra undo should be a no-op")
	}
	if !s.State().Empty() {
		t.Error("extra undo changed the state")
	}
}

func TestCommitStrokeRejectsEmpty(t *testing.T) {
	s := NewStore(DefaultHistoryCapacity)
	if err := s.CommitStroke(Stroke{Tool: ToolPen}); !errors.Is(err, ErrEmptyStroke) {
		t.Fatalf("err = %v, want ErrEmptyStroke", err)
	}
	if s.HistoryLen() != 0 {
		t.Error("rejected stroke must not snapshot")
	}
}

func TestPlaceTextBlankIsNoop(t *testing.T) {
	s := NewStore(DefaultHistoryCapacity)
	for _, text := range []string{"", "   ", "\n\t"} {
		if s.PlaceText(TextAnnotation{Text: text}) {
			t.Errorf("PlaceText(%q) = true", text)
		}
	}
	if s.HistoryLen() != 0 || !s.State().Empty() {
		t.Error("blank text mutated the store")
	}
}

func TestStateIsolation(t *testing.T) {
	s := NewStore(DefaultHistoryCapacity)
	points := []Point{pt(0, 0), pt(1, 1)}
	_ = s.CommitStroke(Stroke{Tool: ToolPen, Points: points})
	points[0].X = 99

	st := s.State()
	if st.Strokes[0].Points[0].X != 0 {
		t.Fatal("store shares point slice with caller")
	}
	st.Strokes[0].Points[1].X = 42
	if s.State().Strokes[0].Points[1].X != 1 {
		t.Fatal("State() returned shared memory")
	}
}

func TestShapeGeometry(t *testing.T) {
	c := Shape{Kind: ShapeCircle, Start: Pos{X: 10, Y: 10}, End: Pos{X: 13, Y: 14}}
	if r := c.Radius(); r != 5 {
		t.Errorf("radius = %v, want 5", r)
	}
	x, y, w, h := Shape{Start: Pos{X: 5, Y: 6}, End: Pos{X: 1, Y: 10}}.Rect()
	if x != 5 || y != 6 || w != -4 || h != 4 {
		t.Errorf("rect = %v %v %v %v", x, y, w, h)
	}
	l, r := Shape{Kind: ShapeArrow, Start: Pos{}, End: Pos{X: 100}}.ArrowHead()
	if l.X >= 100 || r.X >= 100 || (l.Y > 0) == (r.Y > 0) {
		t.Errorf("arrow barbs not on both sides behind the tip: %+v %+v", l, r)
	}
}

func TestColorJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Color
		hex  string
	}{
		{"#ff0000", Red, "#ff0000"},
		{"#fff", White, "#ffffff"},
		{"#00000080", Color{A: 0x80}, "#00000080"},
	}
	for _, tt := range tests {
		var c Color
		if err := json.Unmarshal([]byte(`"`+tt.in+`"`), &c); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if c != tt.want {
			t.Errorf("%s = %+v, want %+v", tt.in, c, tt.want)
		}
		if c.Hex() != tt.hex {
			t.Errorf("hex = %s, want %s", c.Hex(), tt.hex)
		}
	}
	if _, err := ParseColor("#12"); err == nil {
		t.Error("expected error for short color")
	}
}
