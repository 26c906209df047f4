package template

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Position anchors the template against the base image. Edge and corner
// anchors sit flush against the corresponding edge(s).
type Position string

const (
	Center      Position = "center"
	Top         Position = "top"
	Bottom      Position = "bottom"
	Left        Position = "left"
	Right       Position = "right"
	TopLeft     Position = "top_left"
	TopRight    Position = "top_right"
	BottomLeft  Position = "bottom_left"
	BottomRight Position = "bottom_right"
)

// Options control one merge.
type Options struct {
	Position Position

	// WidthPercent/HeightPercent resize the template relative to the base's
	// dimensions, independently per axis. Zero keeps the template's own
	// size on that axis.
	WidthPercent  float64
	HeightPercent float64

	// OpacityPercent multiplies uniformly over the template's own alpha.
	OpacityPercent float64

	// OnTop draws the template over the base; otherwise the base content is
	// composited over the template.
	OnTop bool
}

// Merge overlays a template onto base and returns a new image; base is never
// mutated. Opacity 0 yields a pixel-identical copy of base.
func Merge(base, tpl *image.NRGBA, opts Options) *image.NRGBA {
	if tpl == nil || opts.OpacityPercent <= 0 {
		return imaging.Clone(base)
	}

	bw := base.Rect.Dx()
	bh := base.Rect.Dy()

	tw := tpl.Rect.Dx()
	th := tpl.Rect.Dy()
	if opts.WidthPercent > 0 {
		tw = int(math.Round(float64(bw) * opts.WidthPercent / 100))
	}
	if opts.HeightPercent > 0 {
		th = int(math.Round(float64(bh) * opts.HeightPercent / 100))
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	if tw != tpl.Rect.Dx() || th != tpl.Rect.Dy() {
		tpl = imaging.Resize(tpl, tw, th, imaging.Lanczos)
	}

	pos := anchor(opts.Position, bw, bh, tw, th)
	opacity := math.Min(opts.OpacityPercent, 100) / 100

	if opts.OnTop {
		return imaging.Overlay(base, tpl, pos, opacity)
	}

	// Template underneath: lay it on an empty canvas first, then composite
	// the base content over it.
	canvas := imaging.New(bw, bh, color.NRGBA{})
	canvas = imaging.Overlay(canvas, tpl, pos, opacity)
	return imaging.Overlay(canvas, base, image.Pt(0, 0), 1.0)
}

func anchor(p Position, bw, bh, tw, th int) image.Point {
	cx := (bw - tw) / 2
	cy := (bh - th) / 2
	right := bw - tw
	bottom := bh - th

	switch p {
	case Top:
		return image.Pt(cx, 0)
	case Bottom:
		return image.Pt(cx, bottom)
	case Left:
		return image.Pt(0, cy)
	case Right:
		return image.Pt(right, cy)
	case TopLeft:
		return image.Pt(0, 0)
	case TopRight:
		return image.Pt(right, 0)
	case BottomLeft:
		return image.Pt(0, bottom)
	case BottomRight:
		return image.Pt(right, bottom)
	default:
		return image.Pt(cx, cy)
	}
}

// ParsePosition maps a config string to a Position, defaulting to center.
func ParsePosition(s string) Position {
	switch Position(s) {
	case Top, Bottom, Left, Right, TopLeft, TopRight, BottomLeft, BottomRight:
		return Position(s)
	default:
		return Center
	}
}
