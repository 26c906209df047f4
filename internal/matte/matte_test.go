package matte

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"photofinish/internal/classify"
)

func whiteWithSubject(w, h int, subject image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, &image.Uniform{color.NRGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)
	draw.Draw(img, subject, &image.Uniform{color.NRGBA{40, 40, 40, 255}}, image.Point{}, draw.Src)
	return img
}

func baseOptions() Options {
	return Options{Reference: classify.White, Tolerance: 10, Mode: ModeFull}
}

func TestComputeSeparatesSubjectFromBackground(t *testing.T) {
	img := whiteWithSubject(20, 20, image.Rect(5, 5, 15, 15))
	res := Compute(img, baseOptions())

	if res.Degenerate() {
		t.Fatalf("unexpected degenerate warning: %q", res.Warning)
	}
	if !res.Matte.IsBackground(0, 0) {
		t.Error("corner should classify as background")
	}
	if res.Matte.IsBackground(10, 10) {
		t.Error("subject center should classify as foreground")
	}
}

func TestComputeAllBackgroundIsDegenerate(t *testing.T) {
	img := whiteWithSubject(16, 16, image.Rect(0, 0, 0, 0))
	res := Compute(img, baseOptions())
	if !res.Degenerate() {
		t.Fatal("blank frame should report a degenerate matte")
	}
	if res.Matte == nil {
		t.Fatal("degenerate result must still carry the matte")
	}
	if res.Matte.BackgroundFraction() < 0.995 {
		t.Fatalf("fraction = %f, want near 1", res.Matte.BackgroundFraction())
	}
}

func TestComputeNoBackgroundIsDegenerate(t *testing.T) {
	img := whiteWithSubject(16, 16, image.Rect(0, 0, 16, 16))
	res := Compute(img, baseOptions())
	if !res.Degenerate() {
		t.Fatal("frame with no background should report a degenerate matte")
	}
}

func TestEdgesModePreservesEnclosedRegions(t *testing.T) {
	// white frame, dark ring, white hole in the middle
	img := whiteWithSubject(30, 30, image.Rect(8, 8, 22, 22))
	draw.Draw(img, image.Rect(12, 12, 18, 18), &image.Uniform{color.NRGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	opts := baseOptions()
	opts.Mode = ModeEdges
	edges := Compute(img, opts).Matte

	if !edges.IsBackground(1, 1) {
		t.Error("outer white should stay background in edges mode")
	}
	if edges.IsBackground(15, 15) {
		t.Error("enclosed white hole should stay foreground in edges mode")
	}

	opts.Mode = ModeFull
	full := Compute(img, opts).Matte
	if !full.IsBackground(15, 15) {
		t.Error("full mode should classify the enclosed hole as background")
	}
}

func TestTwoPhaseMatchesSinglePhaseAwayFromBoundary(t *testing.T) {
	img := whiteWithSubject(64, 64, image.Rect(16, 16, 48, 48))

	opts := baseOptions()
	single := Compute(img, opts).Matte

	opts.TwoPhase = true
	opts.ScaleFactor = 0.5
	two := Compute(img, opts).Matte

	// centers of both regions must agree regardless of the coarse pass
	points := []struct{ x, y int }{{2, 2}, {61, 61}, {32, 32}}
	for _, p := range points {
		if single.IsBackground(p.x, p.y) != two.IsBackground(p.x, p.y) {
			t.Errorf("(%d,%d): single=%v two=%v",
				p.x, p.y, single.IsBackground(p.x, p.y), two.IsBackground(p.x, p.y))
		}
	}
}

func TestCoarseScaleAutoSelection(t *testing.T) {
	opts := Options{TwoPhase: true, ScaleFactor: 1.0}

	if s := coarseScale(opts, 1000, 1000); s != 1.0 {
		t.Errorf("small image should skip the coarse pass, got %f", s)
	}
	s := coarseScale(opts, 4000, 3000)
	if s >= 1.0 || s < 0.25 {
		t.Errorf("large image scale = %f, want within [0.25, 1.0)", s)
	}
	if s := coarseScale(opts, 20000, 20000); s != 0.25 {
		t.Errorf("huge image should clamp to 0.25, got %f", s)
	}
	opts.ScaleFactor = 0.4
	if s := coarseScale(opts, 4000, 3000); s != 0.4 {
		t.Errorf("explicit scale should win, got %f", s)
	}
}

func TestHaloReductionErodesBackground(t *testing.T) {
	img := whiteWithSubject(40, 40, image.Rect(10, 10, 30, 30))

	opts := baseOptions()
	plain := Compute(img, opts).Matte

	opts.HaloLevel = 3
	reduced := Compute(img, opts).Matte

	// erosion moves the boundary outward, so a pixel just outside the
	// subject flips from background to foreground
	if !plain.IsBackground(9, 20) {
		t.Fatal("precondition: pixel beside the subject is background")
	}
	if reduced.IsBackground(9, 20) {
		t.Error("halo reduction should pull the boundary into the background")
	}
	if !reduced.IsBackground(1, 1) {
		t.Error("far corner must survive halo reduction as background")
	}
}

func TestHaloLevelZeroIsNoop(t *testing.T) {
	img := whiteWithSubject(20, 20, image.Rect(5, 5, 15, 15))
	opts := baseOptions()
	a := Compute(img, opts).Matte
	opts.HaloLevel = 0
	b := Compute(img, opts).Matte
	for i := range a.Conf {
		if a.Conf[i] != b.Conf[i] {
			t.Fatalf("halo level 0 changed confidence at index %d", i)
		}
	}
}

func TestForegroundBounds(t *testing.T) {
	img := whiteWithSubject(20, 20, image.Rect(3, 4, 12, 17))
	m := Compute(img, baseOptions()).Matte

	minX, minY, maxX, maxY, ok := m.ForegroundBounds()
	if !ok {
		t.Fatal("expected foreground pixels")
	}
	if minX != 3 || minY != 4 || maxX != 11 || maxY != 16 {
		t.Fatalf("bounds = (%d,%d)-(%d,%d), want (3,4)-(11,16)", minX, minY, maxX, maxY)
	}

	blank := whiteWithSubject(10, 10, image.Rect(0, 0, 0, 0))
	if _, _, _, _, ok := Compute(blank, baseOptions()).Matte.ForegroundBounds(); ok {
		t.Error("blank frame should report no foreground bounds")
	}
}
