package tasks

import (
	"context"
	"errors"
	"fmt"

	"photofinish/internal/config"
	"photofinish/internal/imgio"
	"photofinish/internal/template"
)

// MergeRequest defines inputs for overlaying the configured template onto a
// base image.
type MergeRequest struct {
	InputPath  string
	OutputPath string
	Config     *config.Config
}

// MergeResult captures merge metadata.
type MergeResult struct {
	InputFile  string
	OutputFile string
	Template   string
	Width      int
	Height     int
}

// MergeTemplate composites the configured template over (or under) the input
// image. With process_template enabled the template runs through the same
// finishing chain as a regular image first.
func MergeTemplate(ctx context.Context, req MergeRequest) (MergeResult, error) {
	cfg := req.Config
	if cfg.Merge.TemplatePath == "" {
		return MergeResult{}, errors.New("no template_path configured")
	}

	base, err := imgio.Decode(req.InputPath)
	if err != nil {
		return MergeResult{}, fmt.Errorf("decode %s: %v", req.InputPath, err)
	}

	tpl, err := imgio.Decode(cfg.Merge.TemplatePath)
	if err != nil {
		return MergeResult{}, fmt.Errorf("decode template %s: %v", cfg.Merge.TemplatePath, err)
	}

	format := imgio.ParseFormat(cfg.Individual.OutputFormat)
	bg, err := config.ParseHexColor(cfg.Individual.JPEGBackgroundColor)
	if err != nil {
		return MergeResult{}, err
	}

	if cfg.Merge.ProcessTemplate {
		out, _, err := finishDecoded(ctx, tpl, cfg, format, bg)
		if err != nil {
			return MergeResult{}, fmt.Errorf("finish template: %v", err)
		}
		tpl = out.Image
	}

	merged := template.Merge(base, tpl, template.Options{
		Position:       template.ParsePosition(cfg.Merge.Position),
		WidthPercent:   cfg.Merge.WidthPercent,
		HeightPercent:  cfg.Merge.HeightPercent,
		OpacityPercent: cfg.Merge.OpacityPercent,
		OnTop:          cfg.Merge.TemplateOnTop,
	})

	if err := imgio.Encode(req.OutputPath, merged, imgio.EncodeOptions{
		Format:     format,
		Quality:    cfg.Individual.JPEGQuality,
		Lossless:   cfg.Collage.WebPLossless,
		Background: bg,
	}); err != nil {
		return MergeResult{}, err
	}

	return MergeResult{
		InputFile:  req.InputPath,
		OutputFile: req.OutputPath,
		Template:   cfg.Merge.TemplatePath,
		Width:      merged.Rect.Dx(),
		Height:     merged.Rect.Dy(),
	}, nil
}
