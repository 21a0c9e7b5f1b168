package render

import (
	"image"
	"math"

	"github.com/starford/screenflowr/internal/annotation"
)

// composite blends a solid color through a coverage mask onto dst. dst holds
// straight (non-premultiplied) alpha. cov has one byte per pixel.
func composite(dst *image.NRGBA, cov []uint8, col annotation.Color, mode annotation.Composite) {
	ca := float64(col.A) / 255
	cs := [3]float64{float64(col.R) / 255, float64(col.G) / 255, float64(col.B) / 255}

	for i, c := range cov {
		if c == 0 {
			continue
		}
		as := float64(c) / 255 * ca
		if as == 0 {
			continue
		}
		px := dst.Pix[i*4 : i*4+4 : i*4+4]
		ab := float64(px[3]) / 255

		switch mode {
		case annotation.CompositeDestinationOut:
			ao := ab * (1 - as)
			if ao == 0 {
				px[0], px[1], px[2], px[3] = 0, 0, 0, 0
				continue
			}
			px[3] = quantize(ao)

		case annotation.CompositeMultiply:
			var src [3]float64
			for k := 0; k < 3; k++ {
				cb := float64(px[k]) / 255
				src[k] = (1-ab)*cs[k] + ab*cs[k]*cb
			}
			sourceOver(px, src, as, ab)

		default:
			sourceOver(px, cs, as, ab)
		}
	}
}

func sourceOver(px []uint8, cs [3]float64, as, ab float64) {
	ao := as + ab*(1-as)
	if ao == 0 {
		return
	}
	for k := 0; k < 3; k++ {
		cb := float64(px[k]) / 255
		px[k] = quantize((cs[k]*as + cb*ab*(1-as)) / ao)
	}
	px[3] = quantize(ao)
}

func quantize(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(math.Round(v * 255))
}
