package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"photofinish/internal/config"
	"photofinish/internal/pipeline"
	"photofinish/internal/storage"
)

// fakePipeline records submitted jobs and completes them immediately on a
// background goroutine, so the wait helpers see a result per job.
type fakePipeline struct {
	mu        sync.Mutex
	jobs      []pipeline.Job
	subs      map[int]chan pipeline.Result
	nextSubID int
	jobErrors map[string]error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		subs:      map[int]chan pipeline.Result{},
		jobErrors: map[string]error{},
	}
}

func (f *fakePipeline) Submit(job pipeline.Job) error {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	subs := make([]chan pipeline.Result, 0, len(f.subs))
	for _, ch := range f.subs {
		subs = append(subs, ch)
	}
	err := f.errorFor(job)
	f.mu.Unlock()

	go func() {
		res := pipeline.Result{Job: job, Error: err, Meta: map[string]any{"ok": err == nil}}
		for _, ch := range subs {
			ch <- res
		}
	}()
	return nil
}

func (f *fakePipeline) Subscribe() (<-chan pipeline.Result, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSubID
	f.nextSubID++
	ch := make(chan pipeline.Result, 16)
	f.subs[id] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// errorFor matches failures by exact job ID first, then by job type.
func (f *fakePipeline) errorFor(job pipeline.Job) error {
	if err, ok := f.jobErrors[job.ID]; ok {
		return err
	}
	if err, ok := f.jobErrors[string(job.Type)]; ok {
		return err
	}
	return nil
}

func (f *fakePipeline) submitted() []pipeline.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pipeline.Job, len(f.jobs))
	copy(out, f.jobs)
	return out
}

func newTestRoot(t *testing.T) (*Root, *fakePipeline) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DefaultOutput = t.TempDir()
	fake := newFakePipeline()
	return &Root{
		pipeline: fake,
		cfg:      cfg,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		serveFn:  defaultServe,
	}, fake
}

func touchImages(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
		paths = append(paths, p)
	}
	return paths
}

func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	runErr := fn()
	w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), runErr
}

func TestSubmitIndividualQueuesJobPerFile(t *testing.T) {
	root, fake := newTestRoot(t)
	files := []string{"/in/a.png", "/in/b.png", "/in/c.png"}

	if err := root.submitIndividual(context.Background(), files, "/out"); err != nil {
		t.Fatalf("submitIndividual failed: %v", err)
	}

	jobs := fake.submitted()
	if len(jobs) != len(files) {
		t.Fatalf("expected %d jobs, got %d", len(files), len(jobs))
	}
	for i, job := range jobs {
		if job.Type != pipeline.JobIndividual {
			t.Errorf("job %d type = %q, want %q", i, job.Type, pipeline.JobIndividual)
		}
		if job.InputPath != files[i] {
			t.Errorf("job %d input = %q, want %q", i, job.InputPath, files[i])
		}
		if job.Output != "/out" {
			t.Errorf("job %d output = %q, want /out", i, job.Output)
		}
		if idx, ok := job.Options["index"].(int); !ok || idx != i {
			t.Errorf("job %d index option = %v, want %d", i, job.Options["index"], i)
		}
	}
}

func TestSubmitIndividualReturnsFirstJobError(t *testing.T) {
	root, fake := newTestRoot(t)
	wantErr := errors.New("decode failed")
	fake.jobErrors[string(pipeline.JobIndividual)] = wantErr

	err := root.submitIndividual(context.Background(), []string{"/in/a.png", "/in/b.png"}, "/out")
	if err == nil {
		t.Fatal("expected an error when a job fails")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want wrapped %v", err, wantErr)
	}
	if !strings.Contains(err.Error(), "/in/a.png") {
		t.Fatalf("error should name the failing input, got: %v", err)
	}
	if len(fake.submitted()) != 2 {
		t.Fatalf("all jobs should still be submitted, got %d", len(fake.submitted()))
	}
}

// reversingPipeline holds every submitted job until the expected count
// arrives, then completes them in reverse submission order. Workers finish
// jobs in arbitrary order, so the wait helpers must not depend on it.
type reversingPipeline struct {
	expect int
	errs   map[string]error // keyed by input path
	jobs   []pipeline.Job
	ch     chan pipeline.Result
}

func (p *reversingPipeline) Submit(job pipeline.Job) error {
	p.jobs = append(p.jobs, job)
	if len(p.jobs) == p.expect {
		for i := len(p.jobs) - 1; i >= 0; i-- {
			j := p.jobs[i]
			p.ch <- pipeline.Result{Job: j, Error: p.errs[j.InputPath]}
		}
	}
	return nil
}

func (p *reversingPipeline) Subscribe() (<-chan pipeline.Result, func()) {
	return p.ch, func() {}
}

func TestEnqueueAndWaitAllReportsEarliestSubmittedFailure(t *testing.T) {
	errA := errors.New("bad matte")
	errB := errors.New("bad decode")
	pipe := &reversingPipeline{
		expect: 3,
		errs:   map[string]error{"/in/a.png": errA, "/in/b.png": errB},
		ch:     make(chan pipeline.Result, 3),
	}
	root, _ := newTestRoot(t)
	root.pipeline = pipe

	err := root.submitIndividual(context.Background(), []string{"/in/a.png", "/in/b.png", "/in/c.png"}, "/out")
	if !errors.Is(err, errA) {
		t.Fatalf("error = %v, want the earliest-submitted failure %v", err, errA)
	}
	if !strings.Contains(err.Error(), "/in/a.png") {
		t.Fatalf("error should name the earliest failing input, got: %v", err)
	}
}

func TestSubmitCollageQueuesSingleJob(t *testing.T) {
	root, fake := newTestRoot(t)
	files := []string{"/in/set/1.png", "/in/set/2.png"}

	if err := root.submitCollage(context.Background(), files, "/in/set", "/out/set_collage.png"); err != nil {
		t.Fatalf("submitCollage failed: %v", err)
	}

	jobs := fake.submitted()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 collage job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Type != pipeline.JobCollage {
		t.Fatalf("job type = %q, want %q", job.Type, pipeline.JobCollage)
	}
	if job.Output != "/out/set_collage.png" {
		t.Fatalf("job output = %q", job.Output)
	}
	images, ok := job.Options["images"].([]string)
	if !ok || len(images) != 2 {
		t.Fatalf("images option = %v, want the two members", job.Options["images"])
	}
}

func TestEnqueueAndWaitReturnsJobError(t *testing.T) {
	root, fake := newTestRoot(t)
	wantErr := errors.New("no images fit the canvas")
	fake.jobErrors[string(pipeline.JobCollage)] = wantErr

	err := root.submitCollage(context.Background(), []string{"/in/a.png"}, "/in", "/out/c.png")
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}

func TestEnqueueHonorsCancelledContext(t *testing.T) {
	root, fake := newTestRoot(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := root.submitIndividual(ctx, []string{"/in/a.png"}, "/out")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(fake.submitted()) != 0 {
		t.Fatal("no job should be submitted after cancellation")
	}
}

func TestProcessCommandResolvesDirectoryInNaturalOrder(t *testing.T) {
	root, fake := newTestRoot(t)
	dir := t.TempDir()
	touchImages(t, dir, "img10.png", "img2.png")

	cmd := buildRootCmd(root)
	cmd.SetArgs([]string{"process", dir, "-o", root.cfg.Paths.DefaultOutput})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("process command failed: %v", err)
	}

	jobs := fake.submitted()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if filepath.Base(jobs[0].InputPath) != "img2.png" || filepath.Base(jobs[1].InputPath) != "img10.png" {
		t.Fatalf("jobs not in natural order: %s, %s", jobs[0].InputPath, jobs[1].InputPath)
	}
}

func TestProcessCommandArticleFlagEnablesRename(t *testing.T) {
	root, fake := newTestRoot(t)
	dir := t.TempDir()
	touchImages(t, dir, "photo.jpg")

	cmd := buildRootCmd(root)
	cmd.SetArgs([]string{"process", dir, "--article", "SKU-1234"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("process command failed: %v", err)
	}

	if !root.cfg.Individual.EnableRename || root.cfg.Individual.ArticleName != "SKU-1234" {
		t.Fatalf("article flag not applied: rename=%v name=%q",
			root.cfg.Individual.EnableRename, root.cfg.Individual.ArticleName)
	}
	if len(fake.submitted()) != 1 {
		t.Fatalf("expected 1 job, got %d", len(fake.submitted()))
	}
}

func TestProcessCommandFailsOnEmptyDirectory(t *testing.T) {
	root, _ := newTestRoot(t)
	cmd := buildRootCmd(root)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"process", t.TempDir()})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "no images found") {
		t.Fatalf("expected a no-images error, got %v", err)
	}
}

func TestCollageCommandDefaultsOutputName(t *testing.T) {
	root, fake := newTestRoot(t)
	dir := filepath.Join(t.TempDir(), "widgets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	touchImages(t, dir, "1.png", "2.png")

	cmd := buildRootCmd(root)
	cmd.SetArgs([]string{"collage", dir, "--cols", "2"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("collage command failed: %v", err)
	}

	jobs := fake.submitted()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	want := filepath.Join(root.cfg.Paths.DefaultOutput, "widgets_collage.png")
	if jobs[0].Output != want {
		t.Fatalf("output = %q, want %q", jobs[0].Output, want)
	}
	if root.cfg.Collage.ForcedCols != 2 {
		t.Fatalf("cols flag not applied, got %d", root.cfg.Collage.ForcedCols)
	}
}

func TestMergeCommandQueuesMergeJob(t *testing.T) {
	root, fake := newTestRoot(t)

	cmd := buildRootCmd(root)
	cmd.SetArgs([]string{"merge", "/in/base.png", "--template", "/tpl/logo.png", "--position", "bottom_right"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("merge command failed: %v", err)
	}

	jobs := fake.submitted()
	if len(jobs) != 1 || jobs[0].Type != pipeline.JobMerge {
		t.Fatalf("expected 1 merge job, got %+v", jobs)
	}
	if root.cfg.Merge.TemplatePath != "/tpl/logo.png" || root.cfg.Merge.Position != "bottom_right" {
		t.Fatalf("merge flags not applied: %+v", root.cfg.Merge)
	}
}

func TestScanCommandQueuesScanJob(t *testing.T) {
	root, fake := newTestRoot(t)

	cmd := buildRootCmd(root)
	cmd.SetArgs([]string{"scan", "/in/catalog"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("scan command failed: %v", err)
	}

	jobs := fake.submitted()
	if len(jobs) != 1 || jobs[0].Type != pipeline.JobScan {
		t.Fatalf("expected 1 scan job, got %+v", jobs)
	}
	if jobs[0].InputPath != "/in/catalog" {
		t.Fatalf("input = %q", jobs[0].InputPath)
	}
}

func TestServeCommandUsesInjectedServer(t *testing.T) {
	root, _ := newTestRoot(t)
	var gotAddr string
	root.serveFn = func(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient, log *slog.Logger) error {
		gotAddr = addr
		return nil
	}

	cmd := buildRootCmd(root)
	cmd.SetArgs([]string{"serve", "--addr", ":9090"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("serve command failed: %v", err)
	}
	if gotAddr != ":9090" {
		t.Fatalf("serve addr = %q, want :9090", gotAddr)
	}
}

func TestConfigValidateReportsBadValues(t *testing.T) {
	root, _ := newTestRoot(t)
	root.cfg.Background.WhiteTolerance = -1

	cmd := buildRootCmd(root)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"config", "validate"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "white_tolerance") {
		t.Fatalf("expected validation error naming white_tolerance, got %v", err)
	}
}

func TestConfigShowEmitsJSON(t *testing.T) {
	root, _ := newTestRoot(t)

	out, err := captureOutput(t, func() error {
		cmd := buildRootCmd(root)
		cmd.SetArgs([]string{"config", "show"})
		return cmd.Execute()
	})
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "\"background_crop\"") || !strings.Contains(out, "\"collage\"") {
		t.Fatalf("config show output missing sections:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	root, _ := newTestRoot(t)

	var buf bytes.Buffer
	cmd := buildRootCmd(root)
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Photofinish v") {
		t.Fatalf("unexpected version output: %q", buf.String())
	}
}

func TestSettleInterval(t *testing.T) {
	if got := settleInterval(2 * time.Second); got != time.Second {
		t.Errorf("settle 2s interval = %v, want 1s", got)
	}
	if got := settleInterval(0); got <= 0 {
		t.Errorf("zero settle must floor the interval, got %v", got)
	}
	if got := settleInterval(-time.Second); got <= 0 {
		t.Errorf("negative settle must floor the interval, got %v", got)
	}
}

func TestDefaultCollageOutput(t *testing.T) {
	got := defaultCollageOutput("/photos/widgets/", "/out")
	want := filepath.Join("/out", "widgets_collage.png")
	if got != want {
		t.Fatalf("defaultCollageOutput = %q, want %q", got, want)
	}
}

func TestNewIDUsesPrefix(t *testing.T) {
	id := newID("ind")
	if !strings.HasPrefix(id, "ind-") {
		t.Fatalf("id %q missing prefix", id)
	}
	if id == newID("ind") {
		t.Fatal("ids should be unique")
	}
}
