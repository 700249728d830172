package models

import (
	"image"
	"time"
)

// LayoutSource records how a layout was decided
type LayoutSource string

const (
	// SourceAxis means both axes were resolved from gap-score hypotheses
	SourceAxis LayoutSource = "axis"

	// SourceVote means axis detection was inconclusive and the
	// linear/grid vote picked the shape
	SourceVote LayoutSource = "vote"

	// SourceTrivial is used for images too small to carry a grid
	SourceTrivial LayoutSource = "trivial"

	// SourceForced means the caller supplied the shape
	SourceForced LayoutSource = "forced"
)

// LayoutHypothesis is a candidate (or the selected) panel grid
type LayoutHypothesis struct {
	// Rows and Cols give the grid shape
	Rows int
	Cols int

	// ColDividers are x positions of vertical dividers, ascending
	ColDividers []int

	// RowDividers are y positions of horizontal dividers, ascending
	RowDividers []int

	// Score is the mean gap score at the located dividers
	Score float64

	// Source records which stage produced the hypothesis
	Source LayoutSource
}

// PanelCount returns rows × cols
func (h LayoutHypothesis) PanelCount() int {
	return h.Rows * h.Cols
}

// Panel is one cell of the composite grid
type Panel struct {
	// View is the canonical view name (front, right, ...)
	View string

	// Index is the row-major position of the panel
	Index int

	// Base is the nominal cell rectangle in composite coordinates
	Base image.Rectangle

	// Rect is Base expanded by the overlap margin, clamped to the composite
	Rect image.Rectangle

	// Image holds a copy of the pixels inside Rect, origin at (0,0)
	Image *image.NRGBA
}

// AlphaMask is a read-only copy of a panel's alpha channel
type AlphaMask struct {
	Width  int
	Height int

	// Pix holds one byte per pixel in row-major order
	Pix []uint8
}

// MaskFromImage copies the alpha channel out of img
func MaskFromImage(img *image.NRGBA) AlphaMask {
	b := img.Bounds()
	m := AlphaMask{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    make([]uint8, b.Dx()*b.Dy()),
	}
	for y := 0; y < m.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < m.Width; x++ {
			m.Pix[y*m.Width+x] = row[x*4+3]
		}
	}
	return m
}

// SubjectBox is a half-open rectangle [X1,X2) × [Y1,Y2) around the subject
type SubjectBox struct {
	X1, Y1, X2, Y2 int
}

// Width returns the box width
func (b SubjectBox) Width() int { return b.X2 - b.X1 }

// Height returns the box height
func (b SubjectBox) Height() int { return b.Y2 - b.Y1 }

// Rect converts the box to an image.Rectangle
func (b SubjectBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Warning tags attached to degraded outputs
const (
	WarnIsolation       = "isolation"
	WarnEmptyForeground = "empty-foreground"
)

// ViewOutput is the final square image for one panel
type ViewOutput struct {
	View     string
	Image    *image.NRGBA
	Degraded bool
	Warnings []string
}

// Result is what a pipeline run hands back to the caller
type Result struct {
	// RunID identifies the run in logs and intermediary dumps
	RunID string

	// Layout is the grid that was used to split the composite
	Layout LayoutHypothesis

	// Outputs holds one entry per panel in row-major order
	Outputs []ViewOutput

	// DegradedViews lists views that fell back to a lower quality path
	DegradedViews []string

	// Duration is the wall-clock time of the run
	Duration time.Duration
}
