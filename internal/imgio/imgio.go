package imgio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	chaiwebp "github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	xwebp "golang.org/x/image/webp"
)

// Format identifies an output encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpg"
	FormatWebP Format = "webp"
)

// ParseFormat maps a config string to a Format, defaulting to PNG.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "webp":
		return FormatWebP
	default:
		return FormatPNG
	}
}

// Ext returns the file extension for the format, dot included.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatWebP:
		return ".webp"
	default:
		return ".png"
	}
}

// SupportsAlpha reports whether the format can carry transparency.
func (f Format) SupportsAlpha() bool {
	return f != FormatJPEG
}

// Decode loads an image as NRGBA, honoring EXIF orientation where present.
func Decode(path string) (*image.NRGBA, error) {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, err := xwebp.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return imaging.Clone(img), nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return imaging.Clone(img), nil
}

// EncodeOptions control output encoding.
type EncodeOptions struct {
	Format   Format
	Quality  int // JPEG and lossy WebP, 1..100
	Lossless bool
	// Background flattens transparency for formats without alpha.
	Background color.NRGBA
}

// Encode writes img to path in the requested format, creating parent
// directories as needed.
func Encode(path string, img *image.NRGBA, opts EncodeOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch opts.Format {
	case FormatJPEG:
		flat := flatten(img, opts.Background)
		q := opts.Quality
		if q <= 0 || q > 100 {
			q = 90
		}
		return jpeg.Encode(f, flat, &jpeg.Options{Quality: q})
	case FormatWebP:
		q := float32(opts.Quality)
		if q <= 0 || q > 100 {
			q = 90
		}
		return chaiwebp.Encode(f, img, &chaiwebp.Options{Lossless: opts.Lossless, Quality: q})
	default:
		return png.Encode(f, img)
	}
}

// SaveMask writes a sidecar gray mask as PNG.
func SaveMask(path string, mask *image.Gray) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, mask)
}

func flatten(img *image.NRGBA, bg color.NRGBA) *image.NRGBA {
	if bg.A == 0 {
		bg = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	canvas := imaging.New(img.Rect.Dx(), img.Rect.Dy(), bg)
	return imaging.OverlayCenter(canvas, img, 1.0)
}
