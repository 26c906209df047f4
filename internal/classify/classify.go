package classify

import (
	"image"
)

// Reference is the color pixels are tested against. Pure white is the
// conventional studio background.
type Reference struct {
	R, G, B uint8
}

// White is the default reference for product shots.
var White = Reference{R: 255, G: 255, B: 255}

// Distance returns the largest per-channel deviation between a pixel and the
// reference color.
func Distance(r, g, b uint8, ref Reference) int {
	d := absDiff(r, ref.R)
	if dg := absDiff(g, ref.G); dg > d {
		d = dg
	}
	if db := absDiff(b, ref.B); db > d {
		d = db
	}
	return d
}

// IsBackground reports whether every channel of the pixel lies within
// tolerance of the reference color.
func IsBackground(r, g, b uint8, ref Reference, tolerance int) bool {
	return Distance(r, g, b, ref) <= tolerance
}

// Confidence maps a channel distance to a background confidence in [0,255].
// The falloff is linear so matte edges stay smooth; tolerance 0 degenerates
// to a binary test.
func Confidence(dist, tolerance int) uint8 {
	if tolerance <= 0 {
		if dist == 0 {
			return 255
		}
		return 0
	}
	if dist >= tolerance {
		return 0
	}
	return uint8((tolerance - dist) * 255 / tolerance)
}

// PerimeterWhiteness samples the one-pixel border ring and reports whether
// the mean summed channel deviation stays below threshold. The threshold is
// in [0,765] since three channels contribute up to 255 each. Pixels with an
// alpha channel are composited over white before sampling so transparent
// borders count as white.
func PerimeterWhiteness(img *image.NRGBA, ref Reference, threshold int) bool {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if w == 0 || h == 0 {
		return false
	}

	var total, count int64
	sample := func(x, y int) {
		r, g, b := flattenedRGB(img, x, y)
		total += int64(absDiff(r, ref.R)) + int64(absDiff(g, ref.G)) + int64(absDiff(b, ref.B))
		count++
	}

	for x := 0; x < w; x++ {
		sample(x, 0)
		if h > 1 {
			sample(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		sample(0, y)
		if w > 1 {
			sample(w-1, y)
		}
	}

	return total/count <= int64(threshold)
}

// DarkestPerimeter returns the border pixel with the lowest summed channel
// value. Whitening uses it as the cast estimate: a nearly white darkest
// border pixel means the whole border is a color cast, not a real backdrop.
func DarkestPerimeter(img *image.NRGBA) (r, g, b uint8) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	r, g, b = 255, 255, 255
	best := 766

	check := func(x, y int) {
		pr, pg, pb := flattenedRGB(img, x, y)
		if sum := int(pr) + int(pg) + int(pb); sum < best {
			best = sum
			r, g, b = pr, pg, pb
		}
	}

	for x := 0; x < w; x++ {
		check(x, 0)
		if h > 1 {
			check(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		check(0, y)
		if w > 1 {
			check(w-1, y)
		}
	}
	return r, g, b
}

// BandIsBackground reports whether every pixel in the outer band of the
// given width classifies as background at the tolerance.
func BandIsBackground(img *image.NRGBA, ref Reference, tolerance, band int) bool {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if band < 1 {
		band = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= band && x < w-band && y >= band && y < h-band {
				continue
			}
			r, g, b := flattenedRGB(img, x, y)
			if !IsBackground(r, g, b, ref, tolerance) {
				return false
			}
		}
	}
	return true
}

// flattenedRGB reads a pixel composited over white, so partially transparent
// pixels classify by their rendered appearance.
func flattenedRGB(img *image.NRGBA, x, y int) (uint8, uint8, uint8) {
	i := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
	r := img.Pix[i]
	g := img.Pix[i+1]
	b := img.Pix[i+2]
	a := img.Pix[i+3]
	if a == 255 {
		return r, g, b
	}
	over := func(c uint8) uint8 {
		return uint8((int(c)*int(a) + 255*(255-int(a))) / 255)
	}
	return over(r), over(g), over(b)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
