package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/starford/screenflowr/internal/annotation"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	fonts, err := NewFonts()
	if err != nil {
		t.Fatal(err)
	}
	return NewRenderer(64, 64, fonts)
}

func line(tool annotation.Tool, col annotation.Color, width float64, x0, y0, x1, y1 float64) annotation.Stroke {
	return annotation.Stroke{
		ID:    "s",
		Tool:  tool,
		Color: col,
		Width: width,
		Points: []annotation.Point{
			{X: x0, Y: y0, Color: col, Width: width},
			{X: x1, Y: y1, Color: col, Width: width},
		},
	}
}

func sampleState() annotation.State {
	return annotation.State{
		Strokes: []annotation.Stroke{
			line(annotation.ToolPen, annotation.Red, 6, 4, 4, 60, 60),
			line(annotation.ToolHighlighter, annotation.RGB(255, 255, 0), 10, 4, 60, 60, 4),
		},
		Shapes: []annotation.Shape{
			{ID: "r", Kind: annotation.ShapeRectangle, Start: annotation.Pos{X: 8, Y: 8}, End: annotation.Pos{X: 40, Y: 30}, Color: annotation.Black, Width: 2},
			{ID: "c", Kind: annotation.ShapeCircle, Start: annotation.Pos{X: 32, Y: 32}, End: annotation.Pos{X: 32, Y: 44}, Color: annotation.RGB(0, 0, 255), Width: 3},
			{ID: "a", Kind: annotation.ShapeArrow, Start: annotation.Pos{X: 2, Y: 50}, End: annotation.Pos{X: 50, Y: 50}, Color: annotation.RGB(0, 128, 0), Width: 2},
		},
		Texts: []annotation.TextAnnotation{
			{ID: "t", Pos: annotation.Pos{X: 4, Y: 20}, Text: "Hi", Color: annotation.Black, FontSize: 14, FontFamily: "Arial"},
		},
	}
}

func TestRenderDeterministic(t *testing.T) {
	r := newTestRenderer(t)
	state := sampleState()

	a := r.Render(state, nil)
	b := r.Render(state.Clone(), nil)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatal("identical states rendered differently")
	}

	empty := r.Render(annotation.State{}, nil)
	if bytes.Equal(a.Pix, empty.Pix) {
		t.Fatal("sample state rendered nothing")
	}
	for i := 3; i < len(empty.Pix); i += 4 {
		if empty.Pix[i] != 0 {
			t.Fatal("empty state is not transparent")
		}
	}
}

func TestRenderPenAndEraser(t *testing.T) {
	r := newTestRenderer(t)
	pen := line(annotation.ToolPen, annotation.Red, 10, 8, 32, 56, 32)

	img := r.Render(annotation.State{Strokes: []annotation.Stroke{pen}}, nil)
	if c := img.NRGBAAt(32, 32); c.A < 250 || c.R < 250 || c.G > 5 {
		t.Fatalf("pen pixel = %+v, want opaque red", c)
	}
	if c := img.NRGBAAt(32, 5); c.A != 0 {
		t.Fatalf("pixel off the stroke = %+v, want transparent", c)
	}

	eraser := line(annotation.ToolEraser, annotation.White, 14, 8, 32, 56, 32)
	img = r.Render(annotation.State{Strokes: []annotation.Stroke{pen, eraser}}, nil)
	if c := img.NRGBAAt(32, 32); c.A > 5 {
		t.Fatalf("erased pixel = %+v, want transparent", c)
	}
}

func TestRenderSinglePointDot(t *testing.T) {
	r := newTestRenderer(t)
	dot := annotation.Stroke{
		Tool:   annotation.ToolPen,
		Color:  annotation.Black,
		Width:  8,
		Points: []annotation.Point{{X: 20, Y: 20, Color: annotation.Black, Width: 8}},
	}
	img := r.Render(annotation.State{Strokes: []annotation.Stroke{dot}}, nil)
	if c := img.NRGBAAt(20, 20); c.A < 200 {
		t.Fatalf("dot pixel = %+v, want painted", c)
	}
}

func TestRenderLiveOnTop(t *testing.T) {
	r := newTestRenderer(t)
	base := annotation.State{Strokes: []annotation.Stroke{line(annotation.ToolPen, annotation.Red, 10, 8, 32, 56, 32)}}
	live := &annotation.Live{Shape: &annotation.Shape{
		Kind: annotation.ShapeLine, Start: annotation.Pos{X: 32, Y: 8}, End: annotation.Pos{X: 32, Y: 56},
		Color: annotation.RGB(0, 0, 255), Width: 10,
	}}
	img := r.Render(base, live)
	if c := img.NRGBAAt(32, 32); c.B < 250 || c.R > 5 {
		t.Fatalf("crossing pixel = %+v, want live shape on top", c)
	}
}

func TestCompositeModes(t *testing.T) {
	full := []uint8{255}
	tests := []struct {
		name string
		dst  color.NRGBA
		src  annotation.Color
		cov  []uint8
		mode annotation.Composite
		want color.NRGBA
	}{
		{"source-over on empty", color.NRGBA{}, annotation.Red, full, annotation.CompositeNormal, color.NRGBA{R: 255, A: 255}},
		{"source-over half alpha", color.NRGBA{B: 255, A: 255}, annotation.Color{R: 255, A: 128}, full, annotation.CompositeNormal, color.NRGBA{R: 128, B: 127, A: 255}},
		{"multiply opaque", color.NRGBA{R: 255, G: 255, A: 255}, annotation.RGB(0, 255, 255), full, annotation.CompositeMultiply, color.NRGBA{G: 255, A: 255}},
		{"multiply on empty keeps source", color.NRGBA{}, annotation.Color{R: 255, G: 255, A: 128}, full, annotation.CompositeMultiply, color.NRGBA{R: 255, G: 255, A: 128}},
		{"destination-out full", color.NRGBA{R: 255, A: 255}, annotation.White, full, annotation.CompositeDestinationOut, color.NRGBA{}},
		{"destination-out partial", color.NRGBA{R: 255, A: 255}, annotation.White, []uint8{128}, annotation.CompositeDestinationOut, color.NRGBA{R: 255, A: 127}},
		{"zero coverage untouched", color.NRGBA{G: 9, A: 9}, annotation.Red, []uint8{0}, annotation.CompositeNormal, color.NRGBA{G: 9, A: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := image.NewNRGBA(image.Rect(0, 0, 1, 1))
			dst.SetNRGBA(0, 0, tt.dst)
			composite(dst, tt.cov, tt.src, tt.mode)
			if got := dst.NRGBAAt(0, 0); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMultiplyDarkensOverlap(t *testing.T) {
	dst := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	yellow := annotation.Color{R: 255, G: 200, B: 0, A: 255}
	composite(dst, []uint8{255}, yellow, annotation.CompositeMultiply)
	once := dst.NRGBAAt(0, 0)
	composite(dst, []uint8{255}, yellow, annotation.CompositeMultiply)
	twice := dst.NRGBAAt(0, 0)
	if twice.G >= once.G {
		t.Fatalf("overlap did not darken: %+v -> %+v", once, twice)
	}
}

func TestCanvasSurface(t *testing.T) {
	r := newTestRenderer(t)
	c := NewCanvas(r)

	a := annotation.Point{X: 8, Y: 32, Color: annotation.Red, Width: 10}
	b := annotation.Point{X: 56, Y: 32, Color: annotation.Red, Width: 10}
	c.Segment(annotation.ToolPen, a, b)
	if px := c.Image().NRGBAAt(32, 32); px.A < 250 {
		t.Fatalf("segment not painted: %+v", px)
	}

	c.Redraw(annotation.State{}, nil)
	if px := c.Image().NRGBAAt(32, 32); px.A != 0 {
		t.Fatalf("redraw did not repaint: %+v", px)
	}
	if c.Version() != 2 {
		t.Errorf("version = %d, want 2", c.Version())
	}

	var buf bytes.Buffer
	if err := c.EncodePNG(&buf); err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 64 || cfg.Height != 64 {
		t.Errorf("png size = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestResolveFamily(t *testing.T) {
	for in, want := range map[string]string{"Arial": FamilySans, "": FamilySans, "monospace": FamilyMono, "Bold": FamilyBold, "Comic Sans": FamilySans} {
		if got := Resolve(in); got != want {
			t.Errorf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
}
