// Package render rasterizes annotation state onto a transparent RGBA layer.
//
// Geometry is rasterized with gg onto a scratch pixmap as opaque white; the
// resulting alpha is used as coverage and blended onto the layer with the
// primitive's color and composite mode. All arithmetic is deterministic, so
// equal states produce identical pixels.
package render

import (
	"image"

	"github.com/gogpu/gg"

	"github.com/starford/screenflowr/internal/annotation"
)

// Renderer paints annotation states. It is safe for concurrent use.
type Renderer struct {
	width  int
	height int
	fonts  *Fonts
}

// NewRenderer creates a renderer for a width x height layer.
func NewRenderer(width, height int, fonts *Fonts) *Renderer {
	return &Renderer{width: width, height: height, fonts: fonts}
}

// Size returns the layer dimensions.
func (r *Renderer) Size() (width, height int) { return r.width, r.height }

// Render paints state and the optional live primitive onto a fresh transparent
// layer: strokes, then shapes, then texts, then the live primitive.
func (r *Renderer) Render(state annotation.State, live *annotation.Live) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.width, r.height))
	p := r.newPass(dst)
	for _, st := range state.Strokes {
		p.stroke(st)
	}
	for _, sh := range state.Shapes {
		p.shape(sh)
	}
	for _, t := range state.Texts {
		p.text(t)
	}
	if live != nil {
		if live.Stroke != nil {
			p.stroke(*live.Stroke)
		}
		if live.Shape != nil {
			p.shape(*live.Shape)
		}
	}
	return dst
}

// pass holds the scratch surface for one painting run.
type pass struct {
	r   *Renderer
	dst *image.NRGBA
	pm  *gg.Pixmap
	dc  *gg.Context
	cov []uint8
}

func (r *Renderer) newPass(dst *image.NRGBA) *pass {
	pm := gg.NewPixmap(r.width, r.height)
	return &pass{
		r:   r,
		dst: dst,
		pm:  pm,
		dc:  gg.NewContext(r.width, r.height, gg.WithPixmap(pm)),
		cov: make([]uint8, r.width*r.height),
	}
}

// coverage runs draw against a cleared scratch pixmap and returns its alpha.
func (p *pass) coverage(draw func(dc *gg.Context) error) ([]uint8, bool) {
	p.pm.Clear(gg.Transparent)
	p.dc.ClearPath()
	p.dc.SetRGBA(1, 1, 1, 1)
	p.dc.SetLineCap(gg.LineCapRound)
	p.dc.SetLineJoin(gg.LineJoinRound)
	if err := draw(p.dc); err != nil {
		gg.Logger().Debug("render: rasterize failed", "error", err)
		return nil, false
	}
	data := p.pm.Data()
	for i := range p.cov {
		p.cov[i] = data[i*4+3]
	}
	return p.cov, true
}

func (p *pass) paint(col annotation.Color, mode annotation.Composite, draw func(dc *gg.Context) error) {
	cov, ok := p.coverage(draw)
	if !ok {
		return
	}
	composite(p.dst, cov, col, mode)
}

func uniformPaint(st annotation.Stroke) bool {
	for _, pt := range st.Points {
		if pt.Color != st.Color || pt.Width != st.Width {
			return false
		}
	}
	return true
}

func (p *pass) stroke(st annotation.Stroke) {
	mode := st.Tool.Composite()
	switch {
	case len(st.Points) == 0:
		return
	case len(st.Points) == 1:
		pt := st.Points[0]
		p.dot(pt, mode)
	case uniformPaint(st):
		p.paint(st.Color, mode, func(dc *gg.Context) error {
			dc.SetLineWidth(st.Width)
			dc.MoveTo(st.Points[0].X, st.Points[0].Y)
			for _, pt := range st.Points[1:] {
				dc.LineTo(pt.X, pt.Y)
			}
			return dc.Stroke()
		})
	default:
		for i := 1; i < len(st.Points); i++ {
			p.segment(st.Points[i-1], st.Points[i], mode)
		}
	}
}

func (p *pass) dot(pt annotation.Point, mode annotation.Composite) {
	p.paint(pt.Color, mode, func(dc *gg.Context) error {
		dc.DrawPoint(pt.X, pt.Y, pt.Width/2)
		return dc.Fill()
	})
}

// segment paints the line from a to b with b's paint.
func (p *pass) segment(a, b annotation.Point, mode annotation.Composite) {
	if a.Pos() == b.Pos() {
		p.dot(b, mode)
		return
	}
	p.paint(b.Color, mode, func(dc *gg.Context) error {
		dc.SetLineWidth(b.Width)
		dc.MoveTo(a.X, a.Y)
		dc.LineTo(b.X, b.Y)
		return dc.Stroke()
	})
}

func (p *pass) shape(sh annotation.Shape) {
	if sh.Start == sh.End {
		return
	}
	p.paint(sh.Color, annotation.CompositeNormal, func(dc *gg.Context) error {
		dc.SetLineWidth(sh.Width)
		switch sh.Kind {
		case annotation.ShapeRectangle:
			dc.DrawRectangle(sh.Rect())
		case annotation.ShapeCircle:
			dc.DrawCircle(sh.Start.X, sh.Start.Y, sh.Radius())
		case annotation.ShapeLine:
			dc.MoveTo(sh.Start.X, sh.Start.Y)
			dc.LineTo(sh.End.X, sh.End.Y)
		case annotation.ShapeArrow:
			left, right := sh.ArrowHead()
			dc.MoveTo(sh.Start.X, sh.Start.Y)
			dc.LineTo(sh.End.X, sh.End.Y)
			dc.LineTo(left.X, left.Y)
			dc.MoveTo(sh.End.X, sh.End.Y)
			dc.LineTo(right.X, right.Y)
		}
		return dc.Stroke()
	})
}

func (p *pass) text(t annotation.TextAnnotation) {
	if p.r.fonts == nil || t.Text == "" {
		return
	}
	face := p.r.fonts.Face(t.FontFamily, t.FontSize)
	p.paint(t.Color, annotation.CompositeNormal, func(dc *gg.Context) error {
		dc.SetFont(face)
		dc.DrawString(t.Text, t.Pos.X, t.Pos.Y)
		return nil
	})
}
