package tasks

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"photofinish/internal/classify"
	"photofinish/internal/compose"
	"photofinish/internal/config"
	"photofinish/internal/geometry"
	"photofinish/internal/imgio"
	"photofinish/internal/matte"
)

// FinishRequest defines inputs for finishing a single image.
type FinishRequest struct {
	InputPath string
	OutputDir string
	Index     int // position in the batch, drives sequential renaming
	Config    *config.Config
}

// FinishResult captures finishing metadata.
type FinishResult struct {
	InputFile  string
	OutputFile string
	MaskFile   string
	Width      int
	Height     int
	Warning    string
}

// FinishImage runs the full finishing chain on one file: preresize, whitening,
// background matte, crop, pad, tone, sizing and encode.
func FinishImage(ctx context.Context, req FinishRequest) (FinishResult, error) {
	if err := ctx.Err(); err != nil {
		return FinishResult{}, err
	}
	cfg := req.Config

	img, err := imgio.Decode(req.InputPath)
	if err != nil {
		return FinishResult{}, fmt.Errorf("decode %s: %v", req.InputPath, err)
	}

	format := imgio.ParseFormat(cfg.Individual.OutputFormat)
	bg, err := config.ParseHexColor(cfg.Individual.JPEGBackgroundColor)
	if err != nil {
		return FinishResult{}, err
	}
	transparent := format.SupportsAlpha() && !cfg.Background.UseMask

	out, warning, err := finishDecoded(ctx, img, cfg, format, bg)
	if err != nil {
		return FinishResult{}, fmt.Errorf("finish %s: %v", req.InputPath, err)
	}

	final := out.Image
	ind := cfg.Individual
	if len(ind.ForceAspectRatio) == 2 {
		final = compose.ExpandToAspect(final, ind.ForceAspectRatio[0], ind.ForceAspectRatio[1], bg, transparent)
	}
	if ind.EnableExactDimensions && ind.ExactWidth > 0 && ind.ExactHeight > 0 {
		final = compose.FitCanvas(final, ind.ExactWidth, ind.ExactHeight, bg, transparent)
	} else if ind.EnableMaxDimensions {
		final = imaging.Fit(final, fitBound(ind.MaxWidth, final.Rect.Dx()), fitBound(ind.MaxHeight, final.Rect.Dy()), imaging.Lanczos)
	}

	outputFile := filepath.Join(req.OutputDir, outputName(req.InputPath, req.Index, ind, format))
	if err := imgio.Encode(outputFile, final, imgio.EncodeOptions{
		Format:     format,
		Quality:    encodeQuality(format, ind.JPEGQuality, cfg.Collage.WebPQuality),
		Lossless:   cfg.Collage.WebPLossless,
		Background: bg,
	}); err != nil {
		return FinishResult{}, err
	}

	res := FinishResult{
		InputFile:  req.InputPath,
		OutputFile: outputFile,
		Width:      final.Rect.Dx(),
		Height:     final.Rect.Dy(),
		Warning:    warning,
	}

	if out.Mask != nil {
		maskFile := strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + "_mask.png"
		if err := imgio.SaveMask(maskFile, out.Mask); err != nil {
			return FinishResult{}, err
		}
		res.MaskFile = maskFile
	}

	return res, nil
}

// finishDecoded runs the stages shared by individual and collage finishing:
// everything up to and including composition, but no output sizing or encode.
// format and bg come from the invoking workflow, so collage members composite
// for the collage's output format rather than the individual one.
func finishDecoded(ctx context.Context, img *image.NRGBA, cfg *config.Config, format imgio.Format, bg color.NRGBA) (compose.Output, string, error) {
	if err := ctx.Err(); err != nil {
		return compose.Output{}, "", err
	}

	if cfg.Preprocess.Enabled && (cfg.Preprocess.Width > 0 || cfg.Preprocess.Height > 0) {
		w := fitBound(cfg.Preprocess.Width, img.Rect.Dx())
		h := fitBound(cfg.Preprocess.Height, img.Rect.Dy())
		if w < img.Rect.Dx() || h < img.Rect.Dy() {
			img = imaging.Fit(img, w, h, imaging.Lanczos)
		}
	}

	if cfg.Whitening.Enabled {
		img = imaging.Clone(img)
		compose.Whiten(img, cfg.Whitening.CancelThreshold)
	}

	var (
		m       *matte.Matte
		warning string
	)
	full := geometry.Bounds(img.Rect.Dx(), img.Rect.Dy())
	cropRect, padRect := full, full

	bc := cfg.Background
	if bc.Enabled {
		res := matte.Compute(img, matte.Options{
			Reference:   classify.White,
			Tolerance:   bc.WhiteTolerance,
			Mode:        matte.Mode(bc.RemovalMode),
			TwoPhase:    bc.TwoPhase,
			ScaleFactor: bc.ScaleFactor,
			HaloLevel:   bc.HaloReductionLevel,
		})
		m = res.Matte
		warning = res.Warning

		if bc.EnableCrop {
			var cropDegenerate bool
			cropRect, cropDegenerate = geometry.ResolveCrop(m, img, geometry.CropOptions{
				SymmetricAbsolute:  bc.CropSymmetricAbsolute,
				SymmetricAxes:      bc.CropSymmetricAxes,
				ExtraCropPercent:   bc.ExtraCropPercent,
				CheckPerimeter:     bc.CheckPerimeter,
				PerimeterMode:      geometry.PerimeterMode(bc.PerimeterMode),
				PerimeterTolerance: bc.PerimeterTolerance,
				Reference:          classify.White,
			})
			if cropDegenerate {
				warning = joinWarnings(warning, "crop degenerated, kept full frame")
			}
		}
		padRect = cropRect
	}

	if cfg.Padding.Mode != string(geometry.PadNever) {
		padRect = geometry.ResolvePad(cropRect, full, img, geometry.PadOptions{
			Percent:            cfg.Padding.Percent,
			AllowExpansion:     cfg.Padding.AllowExpansion,
			Mode:               geometry.PadMode(cfg.Padding.Mode),
			PerimeterTolerance: cfg.Padding.PerimeterCheckTolerance,
			Reference:          classify.White,
		})
	}

	out, err := compose.Compose(img, m, cropRect, padRect, compose.Options{
		UseMask: bc.UseMask,
		Tone: compose.ToneParams{
			Enabled:    cfg.Tone.Enabled,
			Brightness: cfg.Tone.Brightness,
			Contrast:   cfg.Tone.Contrast,
		},
		Background:      bg,
		TransparentFill: format.SupportsAlpha() && !bc.UseMask,
	})
	if err != nil {
		return compose.Output{}, "", err
	}
	return out, warning, nil
}

// outputName derives the output file name, honoring sequential article
// renaming when enabled.
func outputName(inputPath string, index int, ind config.Individual, format imgio.Format) string {
	if ind.EnableRename && ind.ArticleName != "" {
		return fmt.Sprintf("%s_%02d%s", ind.ArticleName, index+1, format.Ext())
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return base + format.Ext()
}

func fitBound(bound, current int) int {
	if bound <= 0 || bound > current {
		return current
	}
	return bound
}

// encodeQuality picks the quality knob matching the output format.
func encodeQuality(format imgio.Format, jpegQuality, webpQuality int) int {
	if format == imgio.FormatWebP {
		return webpQuality
	}
	return jpegQuality
}

func joinWarnings(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
