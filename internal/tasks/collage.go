package tasks

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"photofinish/internal/collage"
	"photofinish/internal/config"
	"photofinish/internal/imgio"
)

// CollageRequest defines inputs for assembling one collage.
type CollageRequest struct {
	InputPaths  []string
	OutputPath  string
	Concurrency int // 0 means sequential
	Config      *config.Config
}

// CollageResult captures assembly metadata.
type CollageResult struct {
	OutputFile string
	Width      int
	Height     int
	ImageCount int
	Cols       int
	Rows       int
	Warnings   []string
}

// BuildCollage finishes every member image, solves the grid layout and
// renders the final canvas. Members are finished concurrently; any member
// failure fails the whole collage.
func BuildCollage(ctx context.Context, req CollageRequest) (CollageResult, error) {
	if len(req.InputPaths) == 0 {
		return CollageResult{}, collage.ErrNoImages
	}
	cfg := req.Config

	format := imgio.ParseFormat(cfg.Collage.OutputFormat)
	bg, err := config.ParseHexColor(cfg.Collage.JPEGBackgroundColor)
	if err != nil {
		return CollageResult{}, err
	}

	images := make([]*image.NRGBA, len(req.InputPaths))
	warnings := make([]string, len(req.InputPaths))
	errs := make([]error, len(req.InputPaths))

	limit := req.Concurrency
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, path := range req.InputPaths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			img, err := imgio.Decode(path)
			if err != nil {
				errs[i] = fmt.Errorf("decode %s: %v", path, err)
				return
			}
			out, warning, err := finishDecoded(ctx, img, cfg, format, bg)
			if err != nil {
				errs[i] = fmt.Errorf("finish %s: %v", path, err)
				return
			}
			images[i] = out.Image
			if warning != "" {
				warnings[i] = fmt.Sprintf("%s: %s", path, warning)
			}
		}(i, path)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return CollageResult{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return CollageResult{}, err
	}

	sizes := make([]collage.Size, len(images))
	for i, img := range images {
		sizes[i] = collage.Size{W: img.Rect.Dx(), H: img.Rect.Dy()}
	}

	plan, err := collage.Solve(sizes, collageSpec(cfg.Collage))
	if err != nil {
		return CollageResult{}, err
	}

	fill := bg
	if format.SupportsAlpha() {
		fill = color.NRGBA{}
	}

	canvas, err := collage.Render(plan, images, fill)
	if err != nil {
		return CollageResult{}, err
	}

	if err := imgio.Encode(req.OutputPath, canvas, imgio.EncodeOptions{
		Format:     format,
		Quality:    encodeQuality(format, cfg.Collage.JPEGQuality, cfg.Collage.WebPQuality),
		Lossless:   cfg.Collage.WebPLossless,
		Background: bg,
	}); err != nil {
		return CollageResult{}, err
	}

	var warned []string
	for _, w := range warnings {
		if w != "" {
			warned = append(warned, w)
		}
	}

	return CollageResult{
		OutputFile: req.OutputPath,
		Width:      plan.CanvasW,
		Height:     plan.CanvasH,
		ImageCount: len(images),
		Cols:       plan.Cols,
		Rows:       plan.Rows,
		Warnings:   warned,
	}, nil
}

func collageSpec(c config.Collage) collage.Spec {
	spec := collage.Spec{
		ForcedCols:     c.ForcedCols,
		ForcedRows:     c.ForcedRows,
		EnableSpacing:  c.EnableSpacing,
		SpacingPercent: c.SpacingPercent,
		EnableMargins:  c.EnableOuterMargins,
		MarginsPercent: c.OuterMarginsPercent,
		Proportional:   c.ProportionalPlacement,
		Ratios:         c.PlacementRatios,
		ExactWidth:     c.ExactWidth,
		ExactHeight:    c.ExactHeight,
	}
	if len(c.ForceAspectRatio) == 2 {
		spec.ForceAspectW = c.ForceAspectRatio[0]
		spec.ForceAspectH = c.ForceAspectRatio[1]
	}
	if c.EnableMaxDimensions {
		spec.MaxWidth = c.MaxWidth
		spec.MaxHeight = c.MaxHeight
	}
	return spec
}
