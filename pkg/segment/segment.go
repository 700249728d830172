// Package segment cuts a composite image into panels according to a layout.
//
// Each cell is expanded outward by a fraction of its own size before it is
// copied, so limbs that cross the nominal cell boundary are not clipped.
// The overlap this creates with neighbouring panels is removed later by the
// fragment cleaner.
package segment

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"viewsplit/internal/models"
	"viewsplit/pkg/layout"
)

// Params controls panel extraction
type Params struct {
	// OverlapRatio expands every cell by this share of its width/height on each side
	OverlapRatio float64 `yaml:"overlapRatio"`
}

// DefaultParams returns the default 10% overlap
func DefaultParams() Params {
	return Params{OverlapRatio: 0.10}
}

// Split returns rows×cols panels in row-major order, named from the shape table
func Split(img image.Image, h models.LayoutHypothesis, p Params) ([]models.Panel, error) {
	entry, err := layout.Lookup(h.Rows, h.Cols)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("cannot split empty image %dx%d", width, height)
	}

	colEdges := Boundaries(width, h.Cols, h.ColDividers)
	rowEdges := []int{0, height}
	if entry.Strategy == layout.StrategyGrid {
		rowEdges = Boundaries(height, h.Rows, h.RowDividers)
	}

	panels := make([]models.Panel, 0, h.PanelCount())
	for r := 0; r < h.Rows; r++ {
		for c := 0; c < h.Cols; c++ {
			base := image.Rect(colEdges[c], rowEdges[r], colEdges[c+1], rowEdges[r+1])
			rect := Expand(base, p.OverlapRatio, image.Rect(0, 0, width, height))

			idx := len(panels)
			panels = append(panels, models.Panel{
				View:  entry.Views[idx],
				Index: idx,
				Base:  base.Add(bounds.Min),
				Rect:  rect.Add(bounds.Min),
				Image: Crop(img, rect.Add(bounds.Min)),
			})
		}
	}
	return panels, nil
}

// Boundaries returns the n+1 cell edges along an axis of length dim.
// Dividers that do not match n-1 strictly increasing interior positions are
// replaced by even spacing.
func Boundaries(dim, n int, dividers []int) []int {
	if !validDividers(dim, n, dividers) {
		dividers = make([]int, 0, n-1)
		for i := 1; i < n; i++ {
			dividers = append(dividers, i*dim/n)
		}
	}

	edges := make([]int, 0, n+1)
	edges = append(edges, 0)
	edges = append(edges, dividers...)
	return append(edges, dim)
}

func validDividers(dim, n int, dividers []int) bool {
	if len(dividers) != n-1 {
		return false
	}
	prev := 0
	for _, d := range dividers {
		if d <= prev || d >= dim {
			return false
		}
		prev = d
	}
	return true
}

// Expand grows r by ratio of its own size on every side, clamped to limit
func Expand(r image.Rectangle, ratio float64, limit image.Rectangle) image.Rectangle {
	dx := int(math.Round(float64(r.Dx()) * ratio))
	dy := int(math.Round(float64(r.Dy()) * ratio))
	return image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy).Intersect(limit)
}

// Crop copies rect out of img into a new NRGBA image with origin (0,0)
func Crop(img image.Image, rect image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}
