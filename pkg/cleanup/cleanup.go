// Package cleanup removes small disconnected alpha regions from matted panels.
//
// Overlap expansion during segmentation lets silhouette pieces of the
// neighbouring panel bleed in. After matting they survive as small islands
// next to the subject. Clean labels 8-connected foreground components and
// zeroes every component whose area is below a fraction of the largest one.
package cleanup

import (
	"image"

	"viewsplit/internal/models"
)

// Params controls fragment removal
type Params struct {
	// AlphaThreshold binarises the mask: alpha above it is foreground
	AlphaThreshold uint8 `yaml:"alphaThreshold"`

	// MinAreaRatio is the fraction of the largest component below which a
	// component counts as a fragment
	MinAreaRatio float64 `yaml:"minAreaRatio"`
}

// DefaultParams returns threshold 10 and ratio 0.03
func DefaultParams() Params {
	return Params{
		AlphaThreshold: 10,
		MinAreaRatio:   0.03,
	}
}

// Stats summarises one Clean call
type Stats struct {
	Components    int
	LargestArea   int
	Removed       int
	RemovedPixels int

	// Empty is set when no pixel passed the threshold
	Empty bool
}

// Clean zeroes fragment components of img in place (alpha and colour)
func Clean(img *image.NRGBA, p Params) Stats {
	mask := models.MaskFromImage(img)
	labels, areas := Label(mask, p.AlphaThreshold)

	stats := Stats{Components: len(areas)}
	if len(areas) == 0 {
		stats.Empty = true
		return stats
	}

	for _, a := range areas {
		stats.LargestArea = max(stats.LargestArea, a)
	}
	if len(areas) == 1 {
		return stats
	}

	cutoff := float64(stats.LargestArea) * p.MinAreaRatio
	drop := make([]bool, len(areas))
	for i, a := range areas {
		if float64(a) < cutoff {
			drop[i] = true
			stats.Removed++
			stats.RemovedPixels += a
		}
	}
	if stats.Removed == 0 {
		return stats
	}

	for y := 0; y < mask.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < mask.Width; x++ {
			l := labels[y*mask.Width+x]
			if l == 0 || !drop[l-1] {
				continue
			}
			clear(row[x*4 : x*4+4])
		}
	}
	return stats
}

// Label assigns 8-connected foreground pixels (alpha > threshold) to
// components. labels holds 0 for background and k+1 for component k;
// areas[k] is the pixel count of component k. Components are numbered in
// raster order of their first pixel.
func Label(mask models.AlphaMask, threshold uint8) (labels []int32, areas []int) {
	w, h := mask.Width, mask.Height
	labels = make([]int32, w*h)
	stack := make([]int, 0, 64)

	for start, a := range mask.Pix {
		if a <= threshold || labels[start] != 0 {
			continue
		}
		id := int32(len(areas) + 1)
		labels[start] = id
		area := 0

		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++

			x, y := idx%w, idx/w
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w || (dx == 0 && dy == 0) {
						continue
					}
					n := ny*w + nx
					if labels[n] != 0 || mask.Pix[n] <= threshold {
						continue
					}
					labels[n] = id
					stack = append(stack, n)
				}
			}
		}
		areas = append(areas, area)
	}
	return labels, areas
}
