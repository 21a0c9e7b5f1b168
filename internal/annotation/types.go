// Package annotation holds the retained-mode annotation model: strokes, shapes
// and text labels, the bounded undo history, and the gesture controller that
// turns pointer input into committed primitives.
package annotation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is a straight-alpha RGBA color. It marshals as "#rrggbb" when opaque
// and "#rrggbbaa" otherwise.
type Color struct {
	R, G, B, A uint8
}

// Common colors.
var (
	White = Color{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	Black = Color{A: 0xff}
	Red   = Color{R: 0xff, A: 0xff}
)

// RGB returns an opaque color.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b, A: 0xff}
}

// ParseColor parses "#rgb", "#rrggbb" or "#rrggbbaa".
func ParseColor(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 && len(h) != 8 {
		return Color{}, fmt.Errorf("annotation: invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("annotation: invalid color %q: %w", s, err)
	}
	if len(h) == 6 {
		return RGB(uint8(v>>16), uint8(v>>8), uint8(v)), nil
	}
	return Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Hex returns the color in "#rrggbb" or "#rrggbbaa" form.
func (c Color) Hex() string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func (c Color) String() string { return c.Hex() }

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Pos is a pointer position in canvas pixels.
type Pos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Pos) Dist(q Pos) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Point is a single sample of a freehand stroke.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color Color   `json:"color"`
	Width float64 `json:"width"`
}

// Pos returns the point's position.
func (p Point) Pos() Pos { return Pos{X: p.X, Y: p.Y} }

// Tool identifies the active drawing tool.
type Tool string

const (
	ToolPen         Tool = "pen"
	ToolHighlighter Tool = "highlighter"
	ToolEraser      Tool = "eraser"
	ToolRectangle   Tool = "rectangle"
	ToolCircle      Tool = "circle"
	ToolLine        Tool = "line"
	ToolArrow       Tool = "arrow"
	ToolText        Tool = "text"
)

// Tools lists every tool in display order.
var Tools = []Tool{ToolPen, ToolHighlighter, ToolEraser, ToolRectangle, ToolCircle, ToolLine, ToolArrow, ToolText}

// Class groups tools by the gesture they drive.
type Class int

const (
	ClassUnknown Class = iota
	ClassFreehand
	ClassShape
	ClassText
)

// Class reports which gesture family the tool belongs to.
func (t Tool) Class() Class {
	switch t {
	case ToolPen, ToolHighlighter, ToolEraser:
		return ClassFreehand
	case ToolRectangle, ToolCircle, ToolLine, ToolArrow:
		return ClassShape
	case ToolText:
		return ClassText
	default:
		return ClassUnknown
	}
}

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool { return t.Class() != ClassUnknown }

// ShapeKind maps a shape tool to its shape variant.
func (t Tool) ShapeKind() (ShapeKind, bool) {
	if t.Class() != ClassShape {
		return "", false
	}
	return ShapeKind(t), true
}

// Composite is the pixel blend rule used when painting a primitive.
type Composite int

const (
	CompositeNormal Composite = iota
	CompositeMultiply
	CompositeDestinationOut
)

func (c Composite) String() string {
	switch c {
	case CompositeMultiply:
		return "multiply"
	case CompositeDestinationOut:
		return "destination-out"
	default:
		return "source-over"
	}
}

// Composite returns the blend rule for primitives drawn with t.
func (t Tool) Composite() Composite {
	switch t {
	case ToolHighlighter:
		return CompositeMultiply
	case ToolEraser:
		return CompositeDestinationOut
	default:
		return CompositeNormal
	}
}

// Stroke is a committed freehand path.
type Stroke struct {
	ID     string  `json:"id"`
	Tool   Tool    `json:"tool"`
	Color  Color   `json:"color"`
	Width  float64 `json:"width"`
	Points []Point `json:"points"`
}

func (s Stroke) clone() Stroke {
	s.Points = append([]Point(nil), s.Points...)
	return s
}

// ShapeKind is the variant tag of a Shape.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapeLine      ShapeKind = "line"
	ShapeArrow     ShapeKind = "arrow"
)

// ArrowHeadLength and ArrowHeadAngle describe the two barbs of an arrow.
const (
	ArrowHeadLength = 20.0
	ArrowHeadAngle  = math.Pi / 6
)

// Shape is a parametric primitive defined by two points. Geometry is derived.
type Shape struct {
	ID    string    `json:"id"`
	Kind  ShapeKind `json:"kind"`
	Start Pos       `json:"start"`
	End   Pos       `json:"end"`
	Color Color     `json:"color"`
	Width float64   `json:"width"`
}

// Radius is the circle radius: the distance between Start and End.
func (s Shape) Radius() float64 {
	return s.Start.Dist(s.End)
}

// Rect returns the rectangle origin and signed extent.
func (s Shape) Rect() (x, y, w, h float64) {
	return s.Start.X, s.Start.Y, s.End.X - s.Start.X, s.End.Y - s.Start.Y
}

// ArrowHead returns the two barb end points of an arrow pointing at End.
func (s Shape) ArrowHead() (left, right Pos) {
	angle := math.Atan2(s.End.Y-s.Start.Y, s.End.X-s.Start.X)
	left = Pos{
		X: s.End.X - ArrowHeadLength*math.Cos(angle-ArrowHeadAngle),
		Y: s.End.Y - ArrowHeadLength*math.Sin(angle-ArrowHeadAngle),
	}
	right = Pos{
		X: s.End.X - ArrowHeadLength*math.Cos(angle+ArrowHeadAngle),
		Y: s.End.Y - ArrowHeadLength*math.Sin(angle+ArrowHeadAngle),
	}
	return left, right
}

// TextAnnotation is a placed text label. Pos is the baseline origin.
type TextAnnotation struct {
	ID         string  `json:"id"`
	Pos        Pos     `json:"pos"`
	Text       string  `json:"text"`
	Color      Color   `json:"color"`
	FontSize   float64 `json:"font_size"`
	FontFamily string  `json:"font_family"`
}

// Counts summarises the size of a State.
type Counts struct {
	Strokes int `json:"strokes"`
	Shapes  int `json:"shapes"`
	Texts   int `json:"texts"`
}

// State is the full annotation layer. It is the unit of undo.
type State struct {
	Strokes []Stroke         `json:"strokes"`
	Shapes  []Shape          `json:"shapes"`
	Texts   []TextAnnotation `json:"texts"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		Strokes: make([]Stroke, len(s.Strokes)),
		Shapes:  append([]Shape{}, s.Shapes...),
		Texts:   append([]TextAnnotation{}, s.Texts...),
	}
	for i, st := range s.Strokes {
		out.Strokes[i] = st.clone()
	}
	return out
}

// Counts returns the number of primitives in each collection.
func (s State) Counts() Counts {
	return Counts{Strokes: len(s.Strokes), Shapes: len(s.Shapes), Texts: len(s.Texts)}
}

// Empty reports whether all three collections are empty.
func (s State) Empty() bool {
	return len(s.Strokes) == 0 && len(s.Shapes) == 0 && len(s.Texts) == 0
}
