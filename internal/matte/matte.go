package matte

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"photofinish/internal/classify"
)

// Mode selects how background membership is decided.
type Mode string

const (
	// ModeFull classifies every pixel independently against the reference.
	ModeFull Mode = "full"
	// ModeEdges only accepts pixels reachable from the image border through
	// background-classified neighbors, preserving enclosed near-white
	// regions inside the subject.
	ModeEdges Mode = "edges"
)

// foregroundCutoff splits the confidence range into background and
// foreground halves wherever a binary decision is needed.
const foregroundCutoff = 128

// Matte is a per-pixel background confidence map. 255 means certainly
// background, 0 certainly subject. Dimensions always match the source image.
type Matte struct {
	W, H int
	Conf []uint8
}

// NewMatte allocates a zeroed matte (all foreground).
func NewMatte(w, h int) *Matte {
	return &Matte{W: w, H: h, Conf: make([]uint8, w*h)}
}

// At returns the background confidence at (x, y).
func (m *Matte) At(x, y int) uint8 {
	return m.Conf[y*m.W+x]
}

// Set writes the background confidence at (x, y).
func (m *Matte) Set(x, y int, c uint8) {
	m.Conf[y*m.W+x] = c
}

// IsBackground reports whether the pixel at (x, y) counts as background.
func (m *Matte) IsBackground(x, y int) bool {
	return m.At(x, y) >= foregroundCutoff
}

// BackgroundFraction returns the share of pixels classified as background.
func (m *Matte) BackgroundFraction() float64 {
	if len(m.Conf) == 0 {
		return 0
	}
	n := 0
	for _, c := range m.Conf {
		if c >= foregroundCutoff {
			n++
		}
	}
	return float64(n) / float64(len(m.Conf))
}

// ForegroundBounds returns the tight bounding box of foreground pixels and
// whether any foreground pixel exists at all.
func (m *Matte) ForegroundBounds() (minX, minY, maxX, maxY int, ok bool) {
	minX, minY = m.W, m.H
	maxX, maxY = -1, -1
	for y := 0; y < m.H; y++ {
		row := m.Conf[y*m.W : (y+1)*m.W]
		for x, c := range row {
			if c < foregroundCutoff {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	return minX, minY, maxX, maxY, maxX >= 0
}

// Options control matte computation.
type Options struct {
	Reference classify.Reference
	Tolerance int
	Mode      Mode

	// TwoPhase enables the coarse-then-refine pass. ScaleFactor below 1.0
	// fixes the coarse scale; exactly 1.0 selects it from the image size.
	TwoPhase    bool
	ScaleFactor float64

	// HaloLevel 0..5 erodes the background inward and feathers the boundary
	// after classification. 0 leaves the matte untouched.
	HaloLevel int
}

// Result carries the matte plus a degenerate signal. A degenerate matte is
// still returned unchanged: a blank frame is a legitimate outcome, not an
// error.
type Result struct {
	Matte   *Matte
	Warning string
}

// Degenerate reports whether the matte collapsed to all background or all
// foreground.
func (r Result) Degenerate() bool {
	return r.Warning != ""
}

// Compute builds a background matte for img.
func Compute(img *image.NRGBA, opts Options) Result {
	w := img.Rect.Dx()
	h := img.Rect.Dy()

	var m *Matte
	scale := coarseScale(opts, w, h)
	if opts.TwoPhase && scale < 1.0 {
		m = computeTwoPhase(img, opts, scale)
	} else {
		m = classifyImage(img, opts)
	}

	if opts.HaloLevel > 0 {
		reduceHalo(m, opts.HaloLevel)
	}

	res := Result{Matte: m}
	switch frac := m.BackgroundFraction(); {
	case frac >= 0.995:
		res.Warning = "matte is entirely background"
	case frac <= 0.005:
		res.Warning = "matte contains no background"
	}
	return res
}

// coarseScale picks the phase-1 scale. Automatic selection targets roughly
// 1.5 megapixels for the coarse pass: factor = sqrt(1.5e6 / (w*h)), clamped
// to [0.25, 1.0]. Images at or below the target skip the coarse pass.
func coarseScale(opts Options, w, h int) float64 {
	if !opts.TwoPhase {
		return 1.0
	}
	s := opts.ScaleFactor
	if s <= 0 || s >= 1.0 {
		px := float64(w * h)
		if px <= 0 {
			return 1.0
		}
		s = math.Sqrt(1.5e6 / px)
	}
	if s >= 1.0 {
		return 1.0
	}
	if s < 0.25 {
		s = 0.25
	}
	return s
}

func classifyImage(img *image.NRGBA, opts Options) *Matte {
	if opts.Mode == ModeEdges {
		return classifyEdges(img, opts)
	}
	return classifyFull(img, opts)
}

func classifyFull(img *image.NRGBA, opts Options) *Matte {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	m := NewMatte(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, pixelConfidence(img, x, y, opts))
		}
	}
	return m
}

// classifyEdges flood-fills from the four borders through 4-connected
// background pixels. Enclosed background-colored regions stay foreground.
func classifyEdges(img *image.NRGBA, opts Options) *Matte {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	m := NewMatte(w, h)
	visited := make([]bool, w*h)

	queue := make([]int, 0, 2*(w+h))
	push := func(x, y int) {
		idx := y*w + x
		if visited[idx] {
			return
		}
		c := pixelConfidence(img, x, y, opts)
		if c == 0 {
			visited[idx] = true
			return
		}
		visited[idx] = true
		m.Conf[idx] = c
		queue = append(queue, idx)
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		if h > 1 {
			push(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		push(0, y)
		if w > 1 {
			push(w-1, y)
		}
	}

	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x := idx % w
		y := idx / w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}
	return m
}

// computeTwoPhase classifies a downscaled copy first, then re-classifies at
// full resolution inside a band around the coarse boundary. Single-pass
// classification at reduced scale smears boundary pixels toward background
// and leaves a light ring after upscaling; the band re-pass corrects exactly
// those pixels.
func computeTwoPhase(img *image.NRGBA, opts Options, scale float64) *Matte {
	w := img.Rect.Dx()
	h := img.Rect.Dy()

	cw := int(math.Round(float64(w) * scale))
	ch := int(math.Round(float64(h) * scale))
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}
	small := imaging.Resize(img, cw, ch, imaging.Box)
	coarse := classifyImage(small, opts)

	// Upscale the coarse matte by nearest sampling.
	m := NewMatte(w, h)
	for y := 0; y < h; y++ {
		sy := y * ch / h
		for x := 0; x < w; x++ {
			sx := x * cw / w
			m.Set(x, y, coarse.At(sx, sy))
		}
	}

	// Band width grows as the coarse scale shrinks: one coarse pixel spans
	// 1/scale full-resolution pixels, and the boundary error is at most two
	// coarse pixels wide.
	band := int(math.Round(2.0 / scale))
	if band < 2 {
		band = 2
	}
	inBand := boundaryBand(m, band)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if inBand[y*w+x] {
				m.Set(x, y, pixelConfidence(img, x, y, opts))
			}
		}
	}
	return m
}

// boundaryBand marks all pixels within radius of a background/foreground
// transition.
func boundaryBand(m *Matte, radius int) []bool {
	w, h := m.W, m.H
	band := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bg := m.IsBackground(x, y)
			if x < w-1 && m.IsBackground(x+1, y) != bg {
				band[y*w+x] = true
				band[y*w+x+1] = true
			}
			if y < h-1 && m.IsBackground(x, y+1) != bg {
				band[y*w+x] = true
				band[(y+1)*w+x] = true
			}
		}
	}
	for i := 1; i < radius; i++ {
		band = dilate(band, w, h)
	}
	return band
}

func dilate(mask []bool, w, h int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if mask[idx] ||
				(x > 0 && mask[idx-1]) || (x < w-1 && mask[idx+1]) ||
				(y > 0 && mask[idx-w]) || (y < h-1 && mask[idx+w]) {
				out[idx] = true
			}
		}
	}
	return out
}

// reduceHalo erodes the background region by level pixels, then feathers the
// boundary with a separable triangular blur of radius level. Two box passes
// of the same radius approximate a Gaussian falloff closely enough at these
// widths.
func reduceHalo(m *Matte, level int) {
	if level > 5 {
		level = 5
	}
	for i := 0; i < level; i++ {
		erodeBackground(m)
	}
	boxBlur(m, level)
	boxBlur(m, level)
}

// erodeBackground flips background pixels that touch foreground, shrinking
// the background one pixel toward the image edge.
func erodeBackground(m *Matte) {
	w, h := m.W, m.H
	next := make([]uint8, len(m.Conf))
	copy(next, m.Conf)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !m.IsBackground(x, y) {
				continue
			}
			if (x > 0 && !m.IsBackground(x-1, y)) ||
				(x < w-1 && !m.IsBackground(x+1, y)) ||
				(y > 0 && !m.IsBackground(x, y-1)) ||
				(y < h-1 && !m.IsBackground(x, y+1)) {
				next[y*w+x] = 0
			}
		}
	}
	m.Conf = next
}

func boxBlur(m *Matte, radius int) {
	if radius < 1 {
		return
	}
	w, h := m.W, m.H
	tmp := make([]uint8, len(m.Conf))

	// Horizontal pass.
	for y := 0; y < h; y++ {
		row := m.Conf[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dx := -radius; dx <= radius; dx++ {
				if x+dx < 0 || x+dx >= w {
					continue
				}
				sum += int(row[x+dx])
				n++
			}
			tmp[y*w+x] = uint8(sum / n)
		}
	}

	// Vertical pass.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dy := -radius; dy <= radius; dy++ {
				if y+dy < 0 || y+dy >= h {
					continue
				}
				sum += int(tmp[(y+dy)*w+x])
				n++
			}
			m.Conf[y*w+x] = uint8(sum / n)
		}
	}
}

func pixelConfidence(img *image.NRGBA, x, y int, opts Options) uint8 {
	i := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
	r := img.Pix[i]
	g := img.Pix[i+1]
	b := img.Pix[i+2]
	if a := img.Pix[i+3]; a < 255 {
		over := func(c uint8) uint8 {
			return uint8((int(c)*int(a) + 255*(255-int(a))) / 255)
		}
		r, g, b = over(r), over(g), over(b)
	}
	return classify.Confidence(classify.Distance(r, g, b, opts.Reference), opts.Tolerance)
}
