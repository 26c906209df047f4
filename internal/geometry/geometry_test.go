package geometry

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"photofinish/internal/classify"
	"photofinish/internal/matte"
)

func subjectMatte(t *testing.T, w, h int, subject image.Rectangle) (*matte.Matte, *image.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, &image.Uniform{color.NRGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)
	draw.Draw(img, subject, &image.Uniform{color.NRGBA{30, 30, 30, 255}}, image.Point{}, draw.Src)
	res := matte.Compute(img, matte.Options{Reference: classify.White, Tolerance: 10})
	return res.Matte, img
}

func TestResolveCropTightBox(t *testing.T) {
	m, img := subjectMatte(t, 40, 30, image.Rect(10, 5, 25, 20))

	r, degenerate := ResolveCrop(m, img, CropOptions{})
	if degenerate {
		t.Fatal("unexpected degenerate flag")
	}
	want := Rect{X: 10, Y: 5, W: 15, H: 15}
	if r != want {
		t.Fatalf("crop = %+v, want %+v", r, want)
	}
}

func TestResolveCropSymmetricAbsolute(t *testing.T) {
	// margins: left 4, right 40-28=12, top 6, bottom 30-24=6
	m, img := subjectMatte(t, 40, 30, image.Rect(4, 6, 28, 24))

	r, _ := ResolveCrop(m, img, CropOptions{SymmetricAbsolute: true})

	// retained margin: distance from the crop edge to the subject box
	left := 4 - r.X
	right := (r.X + r.W) - 28
	top := 6 - r.Y
	bottom := (r.Y + r.H) - 24
	if left != right || top != bottom || left != top {
		t.Fatalf("margins not equal: l=%d r=%d t=%d b=%d", left, right, top, bottom)
	}
	if left != 4 {
		t.Fatalf("kept margin = %d, want the smallest distance 4", left)
	}
}

func TestResolveCropSymmetricAxes(t *testing.T) {
	m, img := subjectMatte(t, 40, 30, image.Rect(4, 6, 28, 24))

	r, _ := ResolveCrop(m, img, CropOptions{SymmetricAxes: true})

	left := 4 - r.X
	right := (r.X + r.W) - 28
	top := 6 - r.Y
	bottom := (r.Y + r.H) - 24
	if left != right {
		t.Fatalf("horizontal margins differ: l=%d r=%d", left, right)
	}
	if top != bottom {
		t.Fatalf("vertical margins differ: t=%d b=%d", top, bottom)
	}
	// axes mode equalizes per axis, so top keeps 6 even though left is 4
	if left != 4 || top != 6 {
		t.Fatalf("margins = l=%d t=%d, want 4 and 6", left, top)
	}
}

func TestResolveCropExtraPercentInsets(t *testing.T) {
	m, img := subjectMatte(t, 100, 100, image.Rect(10, 10, 90, 90))

	plain, _ := ResolveCrop(m, img, CropOptions{})
	inset, _ := ResolveCrop(m, img, CropOptions{ExtraCropPercent: 10})

	// 10% of an 80px box is 8px total, 4 per side
	if inset.W != plain.W-8 || inset.H != plain.H-8 {
		t.Fatalf("inset = %+v from plain %+v, want 4px per side", inset, plain)
	}
	if inset.X != plain.X+4 || inset.Y != plain.Y+4 {
		t.Fatalf("inset offset = (%d,%d), want (+4,+4)", inset.X-plain.X, inset.Y-plain.Y)
	}
}

func TestResolveCropDegenerateFallsBackToFullFrame(t *testing.T) {
	m, img := subjectMatte(t, 20, 20, image.Rect(0, 0, 0, 0))

	r, degenerate := ResolveCrop(m, img, CropOptions{SymmetricAbsolute: true})
	if !degenerate {
		t.Fatal("blank frame should set the degenerate flag")
	}
	if r != Bounds(20, 20) {
		t.Fatalf("degenerate crop = %+v, want full frame", r)
	}
}

func TestResolveCropPerimeterGate(t *testing.T) {
	m, img := subjectMatte(t, 40, 30, image.Rect(10, 5, 25, 20))

	opts := CropOptions{
		CheckPerimeter:     true,
		PerimeterMode:      PerimeterIfNotWhite,
		PerimeterTolerance: 10,
		Reference:          classify.White,
	}
	// white border with if_not_white polarity skips the crop
	r, degenerate := ResolveCrop(m, img, opts)
	if degenerate {
		t.Fatal("gate skip must not be reported as degenerate")
	}
	if r != Bounds(40, 30) {
		t.Fatalf("gated crop = %+v, want full frame", r)
	}

	opts.PerimeterMode = PerimeterIfWhite
	r, _ = ResolveCrop(m, img, opts)
	if r == Bounds(40, 30) {
		t.Fatal("if_white gate should allow cropping a white-bordered image")
	}
}

func TestResolvePadModes(t *testing.T) {
	r := Rect{X: 10, Y: 10, W: 20, H: 20}
	bounds := Bounds(100, 100)

	if got := ResolvePad(r, bounds, nil, PadOptions{Mode: PadNever, Percent: 10}); got != r {
		t.Fatalf("never mode should leave the rect alone, got %+v", got)
	}

	got := ResolvePad(r, bounds, nil, PadOptions{Mode: PadAlways, Percent: 10, AllowExpansion: true})
	want := Rect{X: 8, Y: 8, W: 24, H: 24}
	if got != want {
		t.Fatalf("pad = %+v, want %+v", got, want)
	}
}

func TestResolvePadCapsWithoutExpansion(t *testing.T) {
	r := Rect{X: 1, Y: 1, W: 30, H: 30}
	bounds := Bounds(32, 32)

	got := ResolvePad(r, bounds, nil, PadOptions{Mode: PadAlways, Percent: 20, AllowExpansion: false})
	if !bounds.Contains(got) {
		t.Fatalf("padded rect %+v escapes bounds %+v", got, bounds)
	}

	free := ResolvePad(r, bounds, nil, PadOptions{Mode: PadAlways, Percent: 20, AllowExpansion: true})
	if bounds.Contains(free) {
		t.Fatalf("expected expansion past bounds, got %+v", free)
	}
}

func TestResolvePadNegativePercentInsets(t *testing.T) {
	r := Rect{X: 10, Y: 10, W: 20, H: 20}
	got := ResolvePad(r, Bounds(100, 100), nil, PadOptions{Mode: PadAlways, Percent: -10, AllowExpansion: true})
	want := Rect{X: 12, Y: 12, W: 16, H: 16}
	if got != want {
		t.Fatalf("inset = %+v, want %+v", got, want)
	}
}

func TestResolvePadIfWhiteGate(t *testing.T) {
	r := Rect{X: 5, Y: 5, W: 10, H: 10}
	bounds := Bounds(30, 30)

	white := image.NewNRGBA(image.Rect(0, 0, 30, 30))
	draw.Draw(white, white.Rect, &image.Uniform{color.NRGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)
	dark := image.NewNRGBA(image.Rect(0, 0, 30, 30))
	draw.Draw(dark, dark.Rect, &image.Uniform{color.NRGBA{30, 30, 30, 255}}, image.Point{}, draw.Src)

	opts := PadOptions{
		Mode:               PadIfWhite,
		Percent:            10,
		AllowExpansion:     true,
		PerimeterTolerance: 10,
		Reference:          classify.White,
	}
	if got := ResolvePad(r, bounds, white, opts); got == r {
		t.Fatal("white border should allow padding")
	}
	if got := ResolvePad(r, bounds, dark, opts); got != r {
		t.Fatalf("dark border should skip padding, got %+v", got)
	}
}

func TestRectIntersectAndContains(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 10, H: 10}
	b := Rect{X: 5, Y: 5, W: 10, H: 10}

	got := a.Intersect(b)
	want := Rect{X: 5, Y: 5, W: 5, H: 5}
	if got != want {
		t.Fatalf("intersect = %+v, want %+v", got, want)
	}
	if !a.Contains(want) || a.Contains(b) {
		t.Fatal("containment checks failed")
	}
	if (Rect{X: 20, Y: 20, W: 5, H: 5}).Intersect(a) != (Rect{}) {
		t.Fatal("disjoint intersect should be empty")
	}
}
