// Package testutil provides synthetic composites and assertion helpers
// shared by the package tests.
package testutil

import (
	"image"
	"image/color"
	"testing"
)

// Gutter is the neutral gray used between synthetic panels
var Gutter = color.NRGBA{R: 128, G: 128, B: 128, A: 255}

// PanelColors are four distinct hues of roughly equal luma (~87), well
// below the gutter gray so every panel/gutter boundary is an edge
var PanelColors = []color.NRGBA{
	{R: 200, G: 40, B: 40, A: 255},
	{R: 40, G: 120, B: 40, A: 255},
	{R: 66, G: 66, B: 250, A: 255},
	{R: 150, G: 45, B: 150, A: 255},
}

// Fill paints r with c
func Fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// Solid returns a w×h image of one colour
func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	Fill(img, img.Bounds(), c)
	return img
}

// GridComposite builds rows×cols solid squares of side panel separated by
// gutter pixels, with margin pixels of gutter colour around the outside.
// It returns the image and the expected divider centres per axis.
func GridComposite(rows, cols, panel, gutter, margin int) (*image.NRGBA, []int, []int) {
	w := 2*margin + cols*panel + (cols-1)*gutter
	h := 2*margin + rows*panel + (rows-1)*gutter
	img := Solid(w, h, Gutter)

	n := 0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x0 := margin + c*(panel+gutter)
			y0 := margin + r*(panel+gutter)
			Fill(img, image.Rect(x0, y0, x0+panel, y0+panel), PanelColors[n%len(PanelColors)])
			n++
		}
	}

	colDividers := make([]int, 0, cols-1)
	for c := 1; c < cols; c++ {
		colDividers = append(colDividers, margin+c*panel+(c-1)*gutter+gutter/2)
	}
	rowDividers := make([]int, 0, rows-1)
	for r := 1; r < rows; r++ {
		rowDividers = append(rowDividers, margin+r*panel+(r-1)*gutter+gutter/2)
	}
	return img, colDividers, rowDividers
}

// White is the background of gutterless sheets
var White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// FigureSheet builds a gutterless rows×cols sheet on white: each cell is
// cellW×cellH with one solid figW×figH figure centred in it. It returns the
// image and the cell boundaries per axis.
func FigureSheet(rows, cols, cellW, cellH, figW, figH int) (*image.NRGBA, []int, []int) {
	img := Solid(cols*cellW, rows*cellH, White)

	n := 0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x0 := c*cellW + (cellW-figW)/2
			y0 := r*cellH + (cellH-figH)/2
			Fill(img, image.Rect(x0, y0, x0+figW, y0+figH), PanelColors[n%len(PanelColors)])
			n++
		}
	}

	colDividers := make([]int, 0, cols-1)
	for c := 1; c < cols; c++ {
		colDividers = append(colDividers, c*cellW)
	}
	rowDividers := make([]int, 0, rows-1)
	for r := 1; r < rows; r++ {
		rowDividers = append(rowDividers, r*cellH)
	}
	return img, colDividers, rowDividers
}

// Blob returns a w×h transparent image with opaque rectangles painted in
func Blob(w, h int, rects ...image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for _, r := range rects {
		Fill(img, r, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	}
	return img
}

// AlphaBounds returns the bounding box of pixels with alpha above threshold
func AlphaBounds(img *image.NRGBA, threshold uint8) image.Rectangle {
	b := img.Bounds()
	out := image.Rectangle{}
	first := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A <= threshold {
				continue
			}
			p := image.Rect(x, y, x+1, y+1)
			if first {
				out = p
				first = false
			} else {
				out = out.Union(p)
			}
		}
	}
	return out
}

// OpaqueCount returns the number of pixels whose alpha exceeds threshold
func OpaqueCount(img *image.NRGBA, threshold uint8) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A > threshold {
				n++
			}
		}
	}
	return n
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Abs returns |v|
func Abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
