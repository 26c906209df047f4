package collage

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// Render draws a solved plan onto a canvas. Each image is scaled to fit its
// cell preserving aspect and centered inside it. The images slice must cover
// every placement index.
func Render(plan *Plan, images []*image.NRGBA, bg color.NRGBA) (*image.NRGBA, error) {
	canvas := imaging.New(plan.CanvasW, plan.CanvasH, bg)

	for _, p := range plan.Cells {
		if p.Index >= len(images) {
			return nil, fmt.Errorf("placement index %d exceeds image count %d", p.Index, len(images))
		}
		img := images[p.Index]
		if img == nil {
			return nil, fmt.Errorf("placement index %d has no image", p.Index)
		}

		w := img.Rect.Dx()
		h := img.Rect.Dy()
		if w == 0 || h == 0 {
			continue
		}

		scale := float64(p.Cell.W) / float64(w)
		if s := float64(p.Cell.H) / float64(h); s < scale {
			scale = s
		}
		tw := int(float64(w) * scale)
		th := int(float64(h) * scale)
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}

		x := p.Cell.X + (p.Cell.W-tw)/2
		y := p.Cell.Y + (p.Cell.H-th)/2
		dst := image.Rect(x, y, x+tw, y+th)
		xdraw.CatmullRom.Scale(canvas, dst, img, img.Rect, xdraw.Over, nil)
	}

	return canvas, nil
}
