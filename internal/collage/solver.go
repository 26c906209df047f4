package collage

import (
	"errors"
	"fmt"
	"math"

	"photofinish/internal/geometry"
)

// ErrNoImages is returned when a collage is requested with an empty set.
var ErrNoImages = errors.New("collage requires at least one image")

// ConflictError reports mutually incompatible layout settings discovered at
// solve time. The offending parameter is named so the caller can surface it;
// values are never silently clamped.
type ConflictError struct {
	Param string
	Value float64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("configuration conflict: %s=%v leaves no room for cells", e.Param, e.Value)
}

// Size is an input image's pixel dimensions.
type Size struct {
	W, H int
}

// Spec carries the layout constraints for one collage run.
type Spec struct {
	// ForcedCols/ForcedRows override the computed grid. Zero means derive:
	// cols = ceil(sqrt(N)), rows = ceil(N/cols).
	ForcedCols int
	ForcedRows int

	// SpacingPercent of the average cell dimension between adjacent cells.
	EnableSpacing  bool
	SpacingPercent float64

	// MarginsPercent of the average cell dimension around the whole grid.
	EnableMargins  bool
	MarginsPercent float64

	// Proportional sizes each cell from its image's aspect ratio scaled by
	// the matching Ratios entry; the ratio list wraps when shorter than N.
	// Otherwise all cells share the largest image's bounding box.
	Proportional bool
	Ratios       []float64

	// ForceAspectW/H expand the shorter canvas dimension to hit the target
	// ratio exactly; content is never cropped. Zero disables.
	ForceAspectW int
	ForceAspectH int

	// MaxWidth/MaxHeight uniformly downscale the whole plan to fit.
	MaxWidth  int
	MaxHeight int

	// ExactWidth/ExactHeight override everything and stretch the assembled
	// grid to that final size.
	ExactWidth  int
	ExactHeight int
}

// Placement maps an input index to its cell rect on the canvas.
type Placement struct {
	Index int
	Cell  geometry.Rect
}

// Plan is a solved layout. Cells never overlap and index i always sits at
// grid position (i/Cols, i%Cols); the solver neither reorders nor drops
// inputs.
type Plan struct {
	CanvasW, CanvasH int
	Cols, Rows       int
	Cells            []Placement
}

// Solve computes a grid placement for the given image sizes.
func Solve(sizes []Size, spec Spec) (*Plan, error) {
	n := len(sizes)
	if n == 0 {
		return nil, ErrNoImages
	}

	cols := spec.ForcedCols
	if cols <= 0 {
		if spec.ForcedRows > 0 {
			cols = ceilDiv(n, spec.ForcedRows)
		} else {
			cols = int(math.Ceil(math.Sqrt(float64(n))))
		}
	}
	rows := ceilDiv(n, cols)

	var plan *Plan
	var err error
	if spec.Proportional {
		plan, err = solveProportional(sizes, spec, cols, rows)
	} else {
		plan, err = solveUniform(sizes, spec, cols, rows)
	}
	if err != nil {
		return nil, err
	}

	if spec.ForceAspectW > 0 && spec.ForceAspectH > 0 {
		forceAspect(plan, spec.ForceAspectW, spec.ForceAspectH)
	}

	if spec.MaxWidth > 0 || spec.MaxHeight > 0 {
		if err := scaleToFit(plan, spec); err != nil {
			return nil, err
		}
	}

	if spec.ExactWidth > 0 && spec.ExactHeight > 0 {
		if err := stretchExact(plan, spec); err != nil {
			return nil, err
		}
	}

	return plan, nil
}

func solveUniform(sizes []Size, spec Spec, cols, rows int) (*Plan, error) {
	cellW, cellH := 0, 0
	for _, s := range sizes {
		if s.W > cellW {
			cellW = s.W
		}
		if s.H > cellH {
			cellH = s.H
		}
	}
	if cellW < 1 || cellH < 1 {
		return nil, &ConflictError{Param: "image size", Value: 0}
	}

	avg := float64(cellW+cellH) / 2
	spacing := 0
	if spec.EnableSpacing {
		spacing = int(math.Round(avg * spec.SpacingPercent / 100))
	}
	margin := 0
	if spec.EnableMargins {
		margin = int(math.Round(avg * spec.MarginsPercent / 100))
	}

	plan := &Plan{
		Cols:    cols,
		Rows:    rows,
		CanvasW: 2*margin + cols*cellW + (cols-1)*spacing,
		CanvasH: 2*margin + rows*cellH + (rows-1)*spacing,
	}
	for i := range sizes {
		r := i / cols
		c := i % cols
		plan.Cells = append(plan.Cells, Placement{
			Index: i,
			Cell: geometry.Rect{
				X: margin + c*(cellW+spacing),
				Y: margin + r*(cellH+spacing),
				W: cellW,
				H: cellH,
			},
		})
	}
	return plan, nil
}

// solveProportional keys every cell off a shared baseline height (the
// tallest input), scaled per image by its ratio entry. Rows take the height
// of their tallest cell; the canvas takes the width of the widest row.
func solveProportional(sizes []Size, spec Spec, cols, rows int) (*Plan, error) {
	base := 0
	for _, s := range sizes {
		if s.H > base {
			base = s.H
		}
	}

	cellDims := make([]Size, len(sizes))
	sumW, sumH := 0.0, 0.0
	for i, s := range sizes {
		ratio := 1.0
		if len(spec.Ratios) > 0 {
			ratio = spec.Ratios[i%len(spec.Ratios)]
		}
		if ratio <= 0 {
			return nil, &ConflictError{Param: "placement_ratios", Value: ratio}
		}
		aspect := float64(s.W) / float64(s.H)
		h := float64(base) * ratio
		cellDims[i] = Size{
			W: int(math.Round(h * aspect)),
			H: int(math.Round(h)),
		}
		sumW += float64(cellDims[i].W)
		sumH += float64(cellDims[i].H)
	}

	avg := (sumW + sumH) / float64(2*len(sizes))
	spacing := 0
	if spec.EnableSpacing {
		spacing = int(math.Round(avg * spec.SpacingPercent / 100))
	}
	margin := 0
	if spec.EnableMargins {
		margin = int(math.Round(avg * spec.MarginsPercent / 100))
	}

	plan := &Plan{Cols: cols, Rows: rows}
	y := margin
	maxRight := 0
	for r := 0; r < rows; r++ {
		x := margin
		rowH := 0
		for c := 0; c < cols; c++ {
			i := r*cols + c
			if i >= len(sizes) {
				break
			}
			d := cellDims[i]
			plan.Cells = append(plan.Cells, Placement{
				Index: i,
				Cell:  geometry.Rect{X: x, Y: y, W: d.W, H: d.H},
			})
			x += d.W + spacing
			if d.H > rowH {
				rowH = d.H
			}
		}
		if x-spacing > maxRight {
			maxRight = x - spacing
		}
		y += rowH + spacing
	}
	plan.CanvasW = maxRight + margin
	plan.CanvasH = y - spacing + margin
	return plan, nil
}

// forceAspect expands the shorter canvas dimension to match the target ratio
// and recenters the grid. Content is never cropped or scaled here.
func forceAspect(plan *Plan, aw, ah int) {
	target := float64(aw) / float64(ah)
	current := float64(plan.CanvasW) / float64(plan.CanvasH)

	if current < target {
		newW := int(math.Round(float64(plan.CanvasH) * target))
		shift := (newW - plan.CanvasW) / 2
		for i := range plan.Cells {
			plan.Cells[i].Cell.X += shift
		}
		plan.CanvasW = newW
	} else if current > target {
		newH := int(math.Round(float64(plan.CanvasW) / target))
		shift := (newH - plan.CanvasH) / 2
		for i := range plan.Cells {
			plan.Cells[i].Cell.Y += shift
		}
		plan.CanvasH = newH
	}
}

func scaleToFit(plan *Plan, spec Spec) error {
	scale := 1.0
	if spec.MaxWidth > 0 && plan.CanvasW > spec.MaxWidth {
		scale = float64(spec.MaxWidth) / float64(plan.CanvasW)
	}
	if spec.MaxHeight > 0 && plan.CanvasH > spec.MaxHeight {
		if s := float64(spec.MaxHeight) / float64(plan.CanvasH); s < scale {
			scale = s
		}
	}
	if scale >= 1.0 {
		return nil
	}
	return rescale(plan, scale, scale, spec)
}

func stretchExact(plan *Plan, spec Spec) error {
	sx := float64(spec.ExactWidth) / float64(plan.CanvasW)
	sy := float64(spec.ExactHeight) / float64(plan.CanvasH)
	if err := rescale(plan, sx, sy, spec); err != nil {
		return err
	}
	plan.CanvasW = spec.ExactWidth
	plan.CanvasH = spec.ExactHeight
	return nil
}

func rescale(plan *Plan, sx, sy float64, spec Spec) error {
	for i := range plan.Cells {
		c := &plan.Cells[i].Cell
		x2 := int(math.Round(float64(c.X+c.W) * sx))
		y2 := int(math.Round(float64(c.Y+c.H) * sy))
		c.X = int(math.Round(float64(c.X) * sx))
		c.Y = int(math.Round(float64(c.Y) * sy))
		c.W = x2 - c.X
		c.H = y2 - c.Y
		if c.W < 1 || c.H < 1 {
			return &ConflictError{Param: offendingParam(spec), Value: offendingValue(spec)}
		}
	}
	plan.CanvasW = int(math.Round(float64(plan.CanvasW) * sx))
	plan.CanvasH = int(math.Round(float64(plan.CanvasH) * sy))
	return nil
}

// offendingParam names the setting that most likely squeezed cells to
// nothing: generous spacing or margins usually do it before the size caps.
func offendingParam(spec Spec) string {
	if spec.EnableSpacing && spec.SpacingPercent > 0 {
		return "spacing_percent"
	}
	if spec.EnableMargins && spec.MarginsPercent > 0 {
		return "outer_margins_percent"
	}
	if spec.ExactWidth > 0 {
		return "exact_dimensions"
	}
	return "max_dimensions"
}

func offendingValue(spec Spec) float64 {
	if spec.EnableSpacing && spec.SpacingPercent > 0 {
		return spec.SpacingPercent
	}
	if spec.EnableMargins && spec.MarginsPercent > 0 {
		return spec.MarginsPercent
	}
	if spec.ExactWidth > 0 {
		return float64(spec.ExactWidth)
	}
	return float64(spec.MaxWidth)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
