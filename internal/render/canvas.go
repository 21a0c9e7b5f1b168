package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"

	"github.com/starford/screenflowr/internal/annotation"
)

// Canvas is the live annotation layer. It implements annotation.Surface: the
// controller repaints it wholesale on Redraw and paints freehand segments on
// top of the current pixels on Segment.
type Canvas struct {
	r *Renderer

	mu      sync.RWMutex
	img     *image.NRGBA
	version uint64
}

var _ annotation.Surface = (*Canvas)(nil)

// NewCanvas creates a transparent canvas.
func NewCanvas(r *Renderer) *Canvas {
	return &Canvas{r: r, img: r.Render(annotation.State{}, nil)}
}

// Redraw repaints the layer from state plus the live primitive.
func (c *Canvas) Redraw(state annotation.State, live *annotation.Live) {
	img := c.r.Render(state, live)
	c.mu.Lock()
	c.img = img
	c.version++
	c.mu.Unlock()
}

// Segment paints one freehand segment on top of the layer.
func (c *Canvas) Segment(tool annotation.Tool, from, to annotation.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.r.newPass(c.img).segment(from, to, tool.Composite())
	c.version++
}

// Size returns the layer dimensions.
func (c *Canvas) Size() (width, height int) { return c.r.Size() }

// Version increases on every repaint.
func (c *Canvas) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Image returns a copy of the current layer.
func (c *Canvas) Image() *image.NRGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := image.NewNRGBA(c.img.Rect)
	copy(out.Pix, c.img.Pix)
	return out
}

// EncodePNG writes the current layer as PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, c.Image()); err != nil {
		return fmt.Errorf("render: encode png: %w", err)
	}
	return nil
}
