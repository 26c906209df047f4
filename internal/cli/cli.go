package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"photofinish/internal/config"
	"photofinish/internal/fsutil"
	"photofinish/internal/pipeline"
	"photofinish/internal/server"
	"photofinish/internal/storage"
	"photofinish/internal/tasks"

	"github.com/google/uuid"
)

type pipelineClient interface {
	Submit(job pipeline.Job) error
	Subscribe() (<-chan pipeline.Result, func())
}

type serverFunc func(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient, log *slog.Logger) error

func defaultServe(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient, log *slog.Logger) error {
	if real, ok := pipe.(*pipeline.Pipeline); ok {
		return server.Serve(ctx, addr, store, real, log)
	}
	return fmt.Errorf("pipeline does not support server operation")
}

// Root wires CLI commands to the pipeline.
type Root struct {
	pipeline pipelineClient
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.Store
	serveFn  serverFunc
}

// NewRoot constructs the CLI root.
func NewRoot(pl *pipeline.Pipeline, cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	return &Root{
		pipeline: pl,
		cfg:      cfg,
		log:      logger,
		store:    store,
		serveFn:  defaultServe,
	}
}

// submitIndividual queues one finishing job per input file and waits for all
// of them, so files in a batch are processed in parallel across workers.
func (r *Root) submitIndividual(ctx context.Context, files []string, outputDir string) error {
	jobs := make([]pipeline.Job, 0, len(files))
	for i, f := range files {
		jobs = append(jobs, pipeline.Job{
			ID:        newID("ind"),
			Type:      pipeline.JobIndividual,
			InputPath: f,
			Output:    outputDir,
			Options: map[string]any{
				"index":  i,
				"source": "cli",
			},
		})
	}
	return r.enqueueAndWaitAll(ctx, jobs)
}

func (r *Root) submitCollage(ctx context.Context, files []string, inputDir, outputPath string) error {
	job := pipeline.Job{
		ID:        newID("col"),
		Type:      pipeline.JobCollage,
		InputPath: inputDir,
		Output:    outputPath,
		Options: map[string]any{
			"images": files,
			"source": "cli",
		},
	}
	return r.enqueueAndWait(ctx, job)
}

func (r *Root) enqueueAndWait(ctx context.Context, job pipeline.Job) error {
	resCh, unsubscribe := r.pipeline.Subscribe()
	defer unsubscribe()
	if err := r.enqueue(ctx, job); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-resCh:
			if !ok {
				return fmt.Errorf("pipeline stopped before completion")
			}
			if res.Job.ID == job.ID {
				if res.Error != nil {
					return res.Error
				}
				return nil
			}
		}
	}
}

// enqueueAndWaitAll submits all jobs, then waits for every one to finish.
// Results complete in arbitrary order across workers, so failures are
// collected and the earliest-submitted one is returned once all jobs are done.
func (r *Root) enqueueAndWaitAll(ctx context.Context, jobs []pipeline.Job) error {
	resCh, unsubscribe := r.pipeline.Subscribe()
	defer unsubscribe()

	order := make(map[string]int, len(jobs))
	for i, job := range jobs {
		if err := r.enqueue(ctx, job); err != nil {
			return err
		}
		order[job.ID] = i
	}

	errByIndex := make(map[int]error)
	remaining := len(jobs)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-resCh:
			if !ok {
				return fmt.Errorf("pipeline stopped before completion")
			}
			idx, ours := order[res.Job.ID]
			if !ours {
				continue
			}
			delete(order, res.Job.ID)
			remaining--
			if res.Error != nil {
				errByIndex[idx] = fmt.Errorf("%s: %w", res.Job.InputPath, res.Error)
			}
		}
	}

	firstIdx := -1
	for idx := range errByIndex {
		if firstIdx < 0 || idx < firstIdx {
			firstIdx = idx
		}
	}
	if firstIdx < 0 {
		return nil
	}
	return errByIndex[firstIdx]
}

func (r *Root) enqueue(ctx context.Context, job pipeline.Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.pipeline.Submit(job); err != nil {
		return err
	}

	r.log.Info("job queued", "type", job.Type, "id", job.ID, "input", job.InputPath)
	return nil
}

// watchAndProcess submits a finishing job for every image that appears under
// dir. Writes are debounced so a file is only processed once it stops
// growing.
func (r *Root) watchAndProcess(ctx context.Context, dir, outputDir string, settle time.Duration) error {
	watcher, err := tasks.NewFileSystemWatcher([]string{dir}, r.log)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	pending := map[string]time.Time{}
	ticker := time.NewTicker(settleInterval(settle))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch ev.Operation {
			case "created", "modified":
				pending[ev.Path] = time.Now()
			case "deleted", "renamed":
				delete(pending, ev.Path)
			}
		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				job := pipeline.Job{
					ID:        newID("watch"),
					Type:      pipeline.JobIndividual,
					InputPath: path,
					Output:    outputDir,
					Options:   map[string]any{"source": "watch"},
				}
				if err := r.enqueue(ctx, job); err != nil {
					r.log.Error("failed to queue watched file", "path", path, "error", err)
				}
			}
		}
	}
}

// settleInterval derives the debounce poll interval from the settle delay.
// A non-positive settle still needs a running ticker, so the interval is
// floored instead of handing time.NewTicker a zero duration.
func settleInterval(settle time.Duration) time.Duration {
	interval := settle / 2
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return interval
}

// resolveInputs expands a path argument into a naturally ordered image list.
func resolveInputs(input string) ([]string, error) {
	files, err := fsutil.ListImages(input)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", input)
	}
	return files, nil
}

func defaultCollageOutput(input, outputDir string) string {
	base := filepath.Base(filepath.Clean(input))
	return filepath.Join(outputDir, base+"_collage.png")
}

func newID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}
