package geometry

import (
	"image"
	"math"

	"photofinish/internal/classify"
	"photofinish/internal/matte"
)

// Rect is an axis-aligned integer rectangle in image coordinates.
type Rect struct {
	X, Y, W, H int
}

// Bounds builds a Rect covering a whole image of the given size.
func Bounds(w, h int) Rect {
	return Rect{W: w, H: h}
}

// Contains reports whether r fully contains o.
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y &&
		o.X+o.W <= r.X+r.W && o.Y+o.H <= r.Y+r.H
}

// Intersect clamps r to o.
func (r Rect) Intersect(o Rect) Rect {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.X+r.W, o.X+o.W)
	y2 := min(r.Y+r.H, o.Y+o.H)
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// ToImageRect converts to the stdlib representation.
func (r Rect) ToImageRect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// PerimeterMode gates whether an operation runs based on how white the image
// border already is.
type PerimeterMode string

const (
	PerimeterAlways     PerimeterMode = "always"
	PerimeterIfWhite    PerimeterMode = "if_white"
	PerimeterIfNotWhite PerimeterMode = "if_not_white"
)

// PadMode gates padding the same way.
type PadMode string

const (
	PadNever   PadMode = "never"
	PadAlways  PadMode = "always"
	PadIfWhite PadMode = "if_white"
)

// CropOptions control crop resolution.
type CropOptions struct {
	// SymmetricAbsolute keeps the largest margin that fits on every side, so
	// all four retained margins are equal. SymmetricAxes does the same per
	// axis, equalizing left/right and top/bottom independently.
	SymmetricAbsolute bool
	SymmetricAxes     bool

	// ExtraCropPercent shrinks the resolved box inward by that percent of
	// its own dimensions, split between the two sides of each axis.
	ExtraCropPercent float64

	// CheckPerimeter enables the gate; PerimeterMode decides the polarity.
	CheckPerimeter     bool
	PerimeterMode      PerimeterMode
	PerimeterTolerance int
	Reference          classify.Reference
}

// ResolveCrop computes the crop window for a matte. The degenerate flag is
// set when no foreground exists; the full-image Rect is returned unchanged
// in that case rather than collapsing to an empty crop.
func ResolveCrop(m *matte.Matte, img *image.NRGBA, opts CropOptions) (Rect, bool) {
	full := Bounds(m.W, m.H)

	if opts.CheckPerimeter && !perimeterAllows(img, opts.PerimeterMode, opts.Reference, opts.PerimeterTolerance) {
		return full, false
	}

	minX, minY, maxX, maxY, ok := m.ForegroundBounds()
	if !ok {
		return full, true
	}

	box := Rect{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1}

	left := box.X
	top := box.Y
	right := m.W - (box.X + box.W)
	bottom := m.H - (box.Y + box.H)

	switch {
	case opts.SymmetricAbsolute:
		// The largest margin that still fits on every side is the smallest
		// of the four distances.
		margin := min(min(left, right), min(top, bottom))
		box = expand(box, margin, margin)
	case opts.SymmetricAxes:
		box = expand(box, min(left, right), min(top, bottom))
	}

	if p := opts.ExtraCropPercent; p != 0 {
		dx := int(math.Round(float64(box.W) * p / 200))
		dy := int(math.Round(float64(box.H) * p / 200))
		box = expand(box, -dx, -dy)
		if box.W < 1 || box.H < 1 {
			return full, true
		}
	}

	return box.Intersect(full), false
}

// PadOptions control pad resolution.
type PadOptions struct {
	// Percent of the shorter rect side, added on all four sides. Negative
	// values inset instead.
	Percent float64

	// AllowExpansion lets the padded rect exceed the source bounds. When
	// false the result is capped so it never grows past the original image.
	AllowExpansion bool

	Mode               PadMode
	PerimeterTolerance int
	Reference          classify.Reference
}

// ResolvePad grows (or shrinks) a rect symmetrically. bounds is the full
// source image Rect used for capping when expansion is disallowed.
func ResolvePad(r Rect, bounds Rect, img *image.NRGBA, opts PadOptions) Rect {
	switch opts.Mode {
	case PadNever:
		return r
	case PadIfWhite:
		if img == nil || !classify.BandIsBackground(img, opts.Reference, opts.PerimeterTolerance, 1) {
			return r
		}
	}

	pad := int(math.Round(float64(min(r.W, r.H)) * opts.Percent / 100))
	if pad == 0 {
		return r
	}

	out := expand(r, pad, pad)
	if out.W < 1 || out.H < 1 {
		return r
	}
	if !opts.AllowExpansion && !bounds.Contains(out) {
		out = out.Intersect(bounds)
	}
	return out
}

func perimeterAllows(img *image.NRGBA, mode PerimeterMode, ref classify.Reference, tolerance int) bool {
	if img == nil {
		return true
	}
	switch mode {
	case PerimeterIfWhite:
		return classify.PerimeterWhiteness(img, ref, tolerance)
	case PerimeterIfNotWhite:
		return !classify.PerimeterWhiteness(img, ref, tolerance)
	default:
		return true
	}
}

func expand(r Rect, dx, dy int) Rect {
	return Rect{X: r.X - dx, Y: r.Y - dy, W: r.W + 2*dx, H: r.H + 2*dy}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
