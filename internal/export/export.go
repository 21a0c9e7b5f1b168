// Package export writes the annotation layer to shareable documents.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// PNG encodes img as PNG.
func PNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("export: png: %w", err)
	}
	return nil
}

// PDF writes a single page document sized to img (1px = 1pt) with img placed
// full-bleed. Transparency is preserved.
func PDF(w io.Writer, img image.Image, title string) error {
	var raster bytes.Buffer
	if err := PNG(&raster, img); err != nil {
		return err
	}

	b := img.Bounds()
	wd, ht := float64(b.Dx()), float64(b.Dy())
	orientation := "P"
	if wd > ht {
		orientation = "L"
	}
	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: wd, Ht: ht},
	})
	p.SetTitle(title, true)
	p.SetCreator("screenflowr", true)
	p.SetMargins(0, 0, 0)
	p.SetAutoPageBreak(false, 0)
	p.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	p.RegisterImageOptionsReader("layer", opts, &raster)
	p.ImageOptions("layer", 0, 0, wd, ht, false, opts, 0, "")

	if err := p.Output(w); err != nil {
		return fmt.Errorf("export: pdf: %w", err)
	}
	return nil
}
