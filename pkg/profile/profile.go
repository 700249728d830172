// Package profile computes the per-row and per-column statistics that the
// layout detector uses to find panel gutters in a composite image.
//
// For every column (and every row) the package derives a local standard
// deviation, a local edge density and a smoothed "gap score". Uniform strips
// with little detail score high and are likely panel boundaries.
package profile

import (
	"errors"
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptyImage is returned for images with zero width or height
var ErrEmptyImage = errors.New("image has zero area")

// Params holds the window sizes and the edge threshold.
// The defaults are empirical and tuned on generator output around 1–4k px wide.
type Params struct {
	// MinStdWindow is the lower bound of the local std / edge window
	MinStdWindow int `yaml:"minStdWindow"`

	// StdWindowDivisor sets the window to dim/StdWindowDivisor lines
	StdWindowDivisor int `yaml:"stdWindowDivisor"`

	// MinSmoothWindow is the lower bound of the moving-average window
	MinSmoothWindow int `yaml:"minSmoothWindow"`

	// SmoothWindowDivisor sets the smoothing window to dim/SmoothWindowDivisor
	SmoothWindowDivisor int `yaml:"smoothWindowDivisor"`

	// EdgeThreshold is the Sobel magnitude at which a pixel counts as an edge
	EdgeThreshold float64 `yaml:"edgeThreshold"`
}

// DefaultParams returns the tuned defaults
func DefaultParams() Params {
	return Params{
		MinStdWindow:        10,
		StdWindowDivisor:    30,
		MinSmoothWindow:     5,
		SmoothWindowDivisor: 40,
		EdgeThreshold:       100,
	}
}

// Axis holds the statistics for one axis, indexed by column (x) or row (y)
type Axis struct {
	// LineStd is the intensity standard deviation along each line
	LineStd []float64

	// LocalStd is LineStd averaged over StdWindow neighbouring lines
	LocalStd []float64

	// EdgeDensity is the fraction of edge pixels in the same window
	EdgeDensity []float64

	// Gap is the smoothed gap score
	Gap []float64

	StdWindow    int
	SmoothWindow int
}

// Len returns the number of lines on the axis
func (a Axis) Len() int { return len(a.Gap) }

// Profile is the EdgeProfile of one composite image
type Profile struct {
	Width  int
	Height int

	// Columns is indexed by x, Rows by y
	Columns Axis
	Rows    Axis

	// Edges is the row-major binary edge map
	Edges []bool

	// EdgeFraction is the share of edge pixels over the whole image
	EdgeFraction float64
}

// Compute builds the profile for img
func Compute(img image.Image, p Params) (*Profile, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyImage
	}

	gray := Intensity(img)
	edges := DetectEdges(gray, width, height, p.EdgeThreshold)

	// Per-line std and edge counts for both axes
	colStd := make([]float64, width)
	colEdges := make([]float64, width)
	column := make([]float64, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			column[y] = gray[y*width+x]
			if edges[y*width+x] {
				colEdges[x]++
			}
		}
		colStd[x] = lineStd(column)
	}

	rowStd := make([]float64, height)
	rowEdges := make([]float64, height)
	for y := 0; y < height; y++ {
		row := gray[y*width : (y+1)*width]
		rowStd[y] = lineStd(row)
		for x := 0; x < width; x++ {
			if edges[y*width+x] {
				rowEdges[y]++
			}
		}
	}

	prof := &Profile{
		Width:   width,
		Height:  height,
		Columns: buildAxis(colStd, colEdges, height, p),
		Rows:    buildAxis(rowStd, rowEdges, width, p),
		Edges:   edges,
	}
	prof.EdgeFraction = floats.Sum(colEdges) / float64(width*height)

	return prof, nil
}

// StdWindow returns the local std window for an axis of length dim
func (p Params) StdWindow(dim int) int {
	return max(p.MinStdWindow, dim/max(1, p.StdWindowDivisor))
}

// SmoothWindow returns the odd moving-average window for an axis of length dim
func (p Params) SmoothWindow(dim int) int {
	w := max(p.MinSmoothWindow, dim/max(1, p.SmoothWindowDivisor))
	if w%2 == 0 {
		w++
	}
	return w
}

// buildAxis turns per-line statistics into windowed scores.
// lineLen is the number of pixels on each line.
func buildAxis(std, edgeCounts []float64, lineLen int, p Params) Axis {
	dim := len(std)
	stdWin := p.StdWindow(dim)
	smoothWin := p.SmoothWindow(dim)

	localStd := windowMean(std, stdWin)
	edgeMean := windowMean(edgeCounts, stdWin)

	density := make([]float64, dim)
	raw := make([]float64, dim)
	for i := range raw {
		density[i] = edgeMean[i] / float64(lineLen)
		raw[i] = 1 / (1 + localStd[i]) * 1 / (1 + density[i])
	}

	return Axis{
		LineStd:      std,
		LocalStd:     localStd,
		EdgeDensity:  density,
		Gap:          windowMean(raw, smoothWin),
		StdWindow:    stdWin,
		SmoothWindow: smoothWin,
	}
}

// windowMean is a centred moving average. The window is truncated at the
// ends and the mean is taken over the lines that remain.
func windowMean(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	window = max(1, window)

	cum := floats.CumSum(make([]float64, n), values)
	half := window / 2
	for i := 0; i < n; i++ {
		lo := max(0, i-half)
		hi := min(n-1, i-half+window-1)
		sum := cum[hi]
		if lo > 0 {
			sum -= cum[lo-1]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// lineStd is the sample standard deviation of one line; 0 for single pixels
func lineStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	_, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		return 0
	}
	return std
}

// Intensity converts img to BT.601 luma in [0,255], row-major
func Intensity(img image.Image) []float64 {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	gray := make([]float64, width*height)

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < height; y++ {
			row := nrgba.Pix[y*nrgba.Stride:]
			for x := 0; x < width; x++ {
				i := x * 4
				gray[y*width+x] = luma(float64(row[i]), float64(row[i+1]), float64(row[i+2]))
			}
		}
		return gray
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			gray[y*width+x] = luma(float64(r>>8), float64(g>>8), float64(bl>>8))
		}
	}
	return gray
}

func luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// DetectEdges applies a 3×3 Sobel operator to a grayscale image and
// thresholds the gradient magnitude. Border pixels use clamped neighbours.
func DetectEdges(gray []float64, width, height int, threshold float64) []bool {
	edges := make([]bool, width*height)
	at := func(x, y int) float64 {
		x = min(max(x, 0), width-1)
		y = min(max(y, 0), height-1)
		return gray[y*width+x]
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			edges[y*width+x] = math.Hypot(gx, gy) >= threshold
		}
	}
	return edges
}

// StripEdgeDensity returns the edge fraction of rows [y0, y1)
func (p *Profile) StripEdgeDensity(y0, y1 int) float64 {
	y0 = max(0, y0)
	y1 = min(p.Height, y1)
	if y1 <= y0 {
		return 0
	}
	count := 0
	for _, e := range p.Edges[y0*p.Width : y1*p.Width] {
		if e {
			count++
		}
	}
	return float64(count) / float64((y1-y0)*p.Width)
}
