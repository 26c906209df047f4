package compose

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"photofinish/internal/classify"
	"photofinish/internal/geometry"
	"photofinish/internal/matte"
)

// ToneParams are the linear brightness/contrast maps. Contrast pivots about
// mid-gray, brightness scales the result:
// out = clamp((in - 128) * contrast + 128) * brightness.
type ToneParams struct {
	Enabled    bool
	Brightness float64
	Contrast   float64
}

// Options control a single composition pass.
type Options struct {
	// UseMask emits the matte as a sidecar gray mask and leaves the base
	// image fully opaque, instead of writing the matte into the alpha
	// channel. PNG alpha can itself halo when re-composited downstream; a
	// separate mask sidesteps that.
	UseMask bool

	Tone ToneParams

	// MaxWidth/MaxHeight scale down preserving aspect, only when the image
	// exceeds them. Zero disables the bound on that axis.
	MaxWidth  int
	MaxHeight int

	// ExactWidth/ExactHeight force the final size after max-dimension
	// scaling, stretching without preserving aspect. Both must be set.
	ExactWidth  int
	ExactHeight int

	// Background fills padded area when TransparentFill is false.
	Background      color.NRGBA
	TransparentFill bool
}

// Output is a finished image plus the optional sidecar mask.
type Output struct {
	Image *image.NRGBA
	Mask  *image.Gray
}

// Compose renders one finished image: matte application, crop, pad, tone and
// output sizing. It owns its output; the input image is never mutated.
func Compose(img *image.NRGBA, m *matte.Matte, cropRect, padRect geometry.Rect, opts Options) (Output, error) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if m != nil && (m.W != w || m.H != h) {
		return Output{}, fmt.Errorf("matte size %dx%d does not match image %dx%d", m.W, m.H, w, h)
	}

	out := imaging.Clone(img)
	var mask *image.Gray

	if m != nil {
		if opts.UseMask {
			mask = maskFromMatte(m)
		} else {
			applyMatteAlpha(out, m)
		}
	}

	if cropRect.W > 0 && cropRect.H > 0 && (cropRect != geometry.Bounds(w, h)) {
		out = imaging.Crop(out, cropRect.ToImageRect())
		if mask != nil {
			mask = cropMask(mask, cropRect)
		}
	}

	if padRect.W > 0 && padRect.H > 0 && padRect != cropRect {
		out, mask = applyPad(out, mask, cropRect, padRect, opts)
	}

	if opts.Tone.Enabled {
		applyTone(out, opts.Tone)
	}

	if opts.MaxWidth > 0 || opts.MaxHeight > 0 {
		out, mask = fitWithin(out, mask, opts.MaxWidth, opts.MaxHeight)
	}

	if opts.ExactWidth > 0 && opts.ExactHeight > 0 {
		out = imaging.Resize(out, opts.ExactWidth, opts.ExactHeight, imaging.Lanczos)
		if mask != nil {
			mask = resizeMask(mask, opts.ExactWidth, opts.ExactHeight)
		}
	}

	return Output{Image: out, Mask: mask}, nil
}

// Whiten rescales channels so the background becomes pure white, using the
// darkest perimeter pixel as the cast estimate. When that pixel's channel
// sum is at or below cancelThreshold the border holds a real backdrop rather
// than a cast, and whitening is skipped. Returns whether it ran.
func Whiten(img *image.NRGBA, cancelThreshold int) bool {
	r, g, b := classify.DarkestPerimeter(img)
	if int(r)+int(g)+int(b) <= cancelThreshold {
		return false
	}

	lut := func(ref uint8) [256]uint8 {
		var t [256]uint8
		scale := 255.0 / math.Max(1, float64(ref))
		for i := 0; i < 256; i++ {
			v := math.Round(float64(i) * scale)
			if v > 255 {
				v = 255
			}
			t[i] = uint8(v)
		}
		return t
	}
	lr, lg, lb := lut(r), lut(g), lut(b)

	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = lr[img.Pix[i]]
		img.Pix[i+1] = lg[img.Pix[i+1]]
		img.Pix[i+2] = lb[img.Pix[i+2]]
	}
	return true
}

// ExpandToAspect grows the canvas to match the target aspect ratio, centering
// the content over the fill color. Content is never cropped or scaled.
func ExpandToAspect(img *image.NRGBA, aw, ah int, fill color.NRGBA, transparent bool) *image.NRGBA {
	if aw <= 0 || ah <= 0 {
		return img
	}
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	target := float64(aw) / float64(ah)
	current := float64(w) / float64(h)

	nw, nh := w, h
	if current < target {
		nw = int(math.Round(float64(h) * target))
	} else if current > target {
		nh = int(math.Round(float64(w) / target))
	}
	if nw == w && nh == h {
		return img
	}

	bg := fill
	if transparent {
		bg = color.NRGBA{}
	}
	canvas := imaging.New(nw, nh, bg)
	return imaging.Paste(canvas, img, image.Pt((nw-w)/2, (nh-h)/2))
}

// FitCanvas resizes the content to fit exact canvas dimensions preserving
// aspect, then centers it over the fill color.
func FitCanvas(img *image.NRGBA, cw, ch int, fill color.NRGBA, transparent bool) *image.NRGBA {
	if cw <= 0 || ch <= 0 {
		return img
	}
	fitted := imaging.Fit(img, cw, ch, imaging.Lanczos)
	bg := fill
	if transparent {
		bg = color.NRGBA{}
	}
	canvas := imaging.New(cw, ch, bg)
	return imaging.Paste(canvas, fitted, image.Pt((cw-fitted.Rect.Dx())/2, (ch-fitted.Rect.Dy())/2))
}

// Flatten composites the image over an opaque background, for formats
// without transparency.
func Flatten(img *image.NRGBA, bg color.NRGBA) *image.NRGBA {
	canvas := imaging.New(img.Rect.Dx(), img.Rect.Dy(), bg)
	return imaging.OverlayCenter(canvas, img, 1.0)
}

func applyMatteAlpha(img *image.NRGBA, m *matte.Matte) {
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			i := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
			opacity := 255 - int(m.At(x, y))
			if a := int(img.Pix[i+3]); opacity > a {
				opacity = a
			}
			img.Pix[i+3] = uint8(opacity)
		}
	}
}

// maskFromMatte encodes foreground opacity: white keeps, black drops.
func maskFromMatte(m *matte.Matte) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			mask.Pix[y*mask.Stride+x] = 255 - m.At(x, y)
		}
	}
	return mask
}

func cropMask(mask *image.Gray, r geometry.Rect) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, r.W, r.H))
	for y := 0; y < r.H; y++ {
		src := mask.Pix[(r.Y+y)*mask.Stride+r.X : (r.Y+y)*mask.Stride+r.X+r.W]
		copy(out.Pix[y*out.Stride:y*out.Stride+r.W], src)
	}
	return out
}

func resizeMask(mask *image.Gray, w, h int) *image.Gray {
	resized := imaging.Resize(mask, w, h, imaging.Lanczos)
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = resized.Pix[y*resized.Stride+x*4]
		}
	}
	return out
}

// applyPad places the cropped content on a larger canvas. padRect is in the
// same source coordinates as cropRect, so the content offset is their delta.
func applyPad(img *image.NRGBA, mask *image.Gray, cropRect, padRect geometry.Rect, opts Options) (*image.NRGBA, *image.Gray) {
	bg := opts.Background
	if opts.TransparentFill {
		bg = color.NRGBA{}
	}
	canvas := imaging.New(padRect.W, padRect.H, bg)
	off := image.Pt(cropRect.X-padRect.X, cropRect.Y-padRect.Y)
	out := imaging.Paste(canvas, img, off)

	if mask == nil {
		return out, nil
	}
	padded := image.NewGray(image.Rect(0, 0, padRect.W, padRect.H))
	for y := 0; y < mask.Rect.Dy(); y++ {
		ty := y + off.Y
		if ty < 0 || ty >= padRect.H {
			continue
		}
		for x := 0; x < mask.Rect.Dx(); x++ {
			tx := x + off.X
			if tx < 0 || tx >= padRect.W {
				continue
			}
			padded.Pix[ty*padded.Stride+tx] = mask.Pix[y*mask.Stride+x]
		}
	}
	return out, padded
}

func applyTone(img *image.NRGBA, tone ToneParams) {
	var lut [256]uint8
	for i := 0; i < 256; i++ {
		v := (float64(i)-128)*tone.Contrast + 128
		v = clamp255(v) * tone.Brightness
		lut[i] = uint8(clamp255(v))
	}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = lut[img.Pix[i]]
		img.Pix[i+1] = lut[img.Pix[i+1]]
		img.Pix[i+2] = lut[img.Pix[i+2]]
	}
}

// fitWithin scales down preserving aspect, only when a bound is exceeded.
func fitWithin(img *image.NRGBA, mask *image.Gray, maxW, maxH int) (*image.NRGBA, *image.Gray) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}
	if scale >= 1.0 {
		return img, mask
	}
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	out := imaging.Resize(img, nw, nh, imaging.Lanczos)
	if mask != nil {
		mask = resizeMask(mask, nw, nh)
	}
	return out, mask
}

func clamp255(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
