package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"photofinish/internal/config"
	"photofinish/internal/logging"
	"photofinish/internal/storage"
	"photofinish/internal/tasks"
)

// router implements Processor and routes jobs to their concrete handlers.
type router struct {
	log         *slog.Logger
	store       *storage.Store
	cfg         *config.Config
	concurrency int
	finishFn    finishFunc
	collageFn   collageFunc
	mergeFn     mergeFunc
	scanFn      scanFunc
}

type finishFunc func(ctx context.Context, req tasks.FinishRequest) (tasks.FinishResult, error)

type collageFunc func(ctx context.Context, req tasks.CollageRequest) (tasks.CollageResult, error)

type mergeFunc func(ctx context.Context, req tasks.MergeRequest) (tasks.MergeResult, error)

type scanFunc func(input string) (tasks.ScanResult, error)

func newRouter(logger *slog.Logger, store *storage.Store, cfg *config.Config, concurrency int) Processor {
	return &router{
		log:         logger,
		store:       store,
		cfg:         cfg,
		concurrency: concurrency,
		finishFn:    tasks.FinishImage,
		collageFn:   tasks.BuildCollage,
		mergeFn:     tasks.MergeTemplate,
		scanFn:      tasks.Scan,
	}
}

func (r *router) Process(ctx context.Context, job Job) Result {
	switch job.Type {
	case JobIndividual:
		return r.handleIndividual(ctx, job)
	case JobCollage:
		return r.handleCollage(ctx, job)
	case JobMerge:
		return r.handleMerge(ctx, job)
	case JobScan:
		return r.handleScan(ctx, job)
	default:
		return Result{Job: job, Error: fmt.Errorf("unknown job type: %s", job.Type)}
	}
}

func (r *router) handleIndividual(ctx context.Context, job Job) Result {
	res, err := r.finishFn(ctx, tasks.FinishRequest{
		InputPath: job.InputPath,
		OutputDir: job.Output,
		Index:     getIntOption(job.Options, "index"),
		Config:    r.cfg,
	})
	if err != nil {
		return Result{Job: job, Error: err}
	}

	if res.Warning != "" {
		r.log.Warn("degenerate matte, crop skipped", "job", job.ID, "input", job.InputPath, "warning", res.Warning)
	}
	r.recordOutput(job.ID, res.OutputFile, res.Width, res.Height)
	if res.MaskFile != "" {
		r.recordOutput(job.ID, res.MaskFile, res.Width, res.Height)
	}

	meta := map[string]any{
		"output": res.OutputFile,
		"width":  res.Width,
		"height": res.Height,
	}
	if res.MaskFile != "" {
		meta["mask"] = res.MaskFile
	}
	if res.Warning != "" {
		meta["warning"] = res.Warning
	}
	return Result{Job: job, Meta: meta}
}

func (r *router) handleCollage(ctx context.Context, job Job) Result {
	images := getStringSliceOption(job.Options, "images")
	if r.store != nil {
		_ = r.store.RecordCollageGroup(storage.CollageGroupRecord{
			JobID:      job.ID,
			BasePath:   job.InputPath,
			ImageCount: len(images),
			Status:     "running",
		})
	}

	logging.LogProcessingStep(r.log, job.ID, "collage", "composing", map[string]any{"images": len(images)})

	res, err := r.collageFn(ctx, tasks.CollageRequest{
		InputPaths:  images,
		OutputPath:  job.Output,
		Concurrency: r.concurrency,
		Config:      r.cfg,
	})
	if err != nil {
		return Result{Job: job, Error: err}
	}

	for _, w := range res.Warnings {
		r.log.Warn("degenerate matte in collage member", "job", job.ID, "warning", w)
	}
	r.recordOutput(job.ID, res.OutputFile, res.Width, res.Height)

	meta := map[string]any{
		"output":     res.OutputFile,
		"width":      res.Width,
		"height":     res.Height,
		"imageCount": res.ImageCount,
		"cols":       res.Cols,
		"rows":       res.Rows,
	}
	if len(res.Warnings) > 0 {
		meta["warnings"] = res.Warnings
	}
	return Result{Job: job, Meta: meta}
}

func (r *router) handleMerge(ctx context.Context, job Job) Result {
	res, err := r.mergeFn(ctx, tasks.MergeRequest{
		InputPath:  job.InputPath,
		OutputPath: job.Output,
		Config:     r.cfg,
	})
	if err != nil {
		return Result{Job: job, Error: err}
	}

	r.recordOutput(job.ID, res.OutputFile, res.Width, res.Height)
	meta := map[string]any{
		"output":   res.OutputFile,
		"template": res.Template,
		"width":    res.Width,
		"height":   res.Height,
	}
	return Result{Job: job, Meta: meta}
}

func (r *router) handleScan(ctx context.Context, job Job) Result {
	summary, err := r.scanFn(job.InputPath)
	meta := map[string]any{
		"images": len(summary.Images),
		"groups": len(summary.Groups),
	}
	for _, g := range summary.Groups {
		if r.store != nil {
			_ = r.store.RecordCollageGroup(storage.CollageGroupRecord{
				JobID:      job.ID,
				BasePath:   g.BasePath,
				ImageCount: g.Count,
				Status:     "candidate",
			})
		}
	}
	return Result{Job: job, Error: err, Meta: meta}
}

func (r *router) recordOutput(jobID, path string, w, h int) {
	if r.store == nil || path == "" {
		return
	}
	_ = r.store.RecordOutputFile(storage.OutputFileRecord{
		JobID:  jobID,
		Path:   path,
		Format: formatFromPath(path),
		Width:  w,
		Height: h,
	})
}

func formatFromPath(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}

// Helper functions to safely extract typed options from job.Options map
func getIntOption(options map[string]any, key string) int {
	switch v := options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func getStringSliceOption(options map[string]any, key string) []string {
	if val, ok := options[key].([]string); ok {
		return val
	}
	if vals, ok := options[key].([]any); ok {
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
