// Package recrop frames a cleaned panel as a fixed-size, subject-centred square.
package recrop

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"viewsplit/internal/models"
)

// Params controls the output framing
type Params struct {
	// TargetSize is the side of the output square
	TargetSize int `yaml:"targetSize"`

	// Padding expands the subject box on every side before squaring
	Padding int `yaml:"padding"`

	// AlphaThreshold marks foreground: alpha above it belongs to the subject
	AlphaThreshold uint8 `yaml:"alphaThreshold"`
}

// DefaultParams returns a 1024 px target with 20 px padding
func DefaultParams() Params {
	return Params{
		TargetSize: 1024,
		Padding:    20,
	}
}

// Stats reports how a panel was framed
type Stats struct {
	// Box is the padded subject box in panel coordinates
	Box models.SubjectBox

	// Square is the region that was scaled onto the canvas
	Square image.Rectangle

	// Empty is set when the panel had no foreground and the full panel was used
	Empty bool
}

// SubjectBounds returns the tight box around pixels with alpha above
// threshold, and false when there are none
func SubjectBounds(img *image.NRGBA, threshold uint8) (models.SubjectBox, bool) {
	b := img.Bounds()
	box := models.SubjectBox{X1: b.Max.X, Y1: b.Max.Y, X2: b.Min.X, Y2: b.Min.Y}
	found := false

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			if row[(x-b.Min.X)*4+3] <= threshold {
				continue
			}
			found = true
			box.X1 = min(box.X1, x)
			box.Y1 = min(box.Y1, y)
			box.X2 = max(box.X2, x+1)
			box.Y2 = max(box.Y2, y+1)
		}
	}
	if !found {
		return models.SubjectBox{}, false
	}
	return box, true
}

// SquareRegion returns the square of side max(w,h) centred on box, shifted
// to lie inside bounds. When the side exceeds a bounds dimension the square
// is cut down to bounds on that axis.
func SquareRegion(box image.Rectangle, bounds image.Rectangle) image.Rectangle {
	side := max(box.Dx(), box.Dy())
	x0 := box.Min.X + (box.Dx()-side)/2
	y0 := box.Min.Y + (box.Dy()-side)/2

	x0 = shift(x0, side, bounds.Min.X, bounds.Max.X)
	y0 = shift(y0, side, bounds.Min.Y, bounds.Max.Y)

	return image.Rect(x0, y0, x0+side, y0+side).Intersect(bounds)
}

// shift moves [start, start+size) into [lo, hi) without resizing, favouring
// lo when it cannot fit
func shift(start, size, lo, hi int) int {
	if start+size > hi {
		start = hi - size
	}
	if start < lo {
		start = lo
	}
	return start
}

// Recrop frames img on a TargetSize square canvas filled with fill
func Recrop(img *image.NRGBA, p Params, fill color.Color) (*image.NRGBA, Stats) {
	bounds := img.Bounds()
	var stats Stats

	box, ok := SubjectBounds(img, p.AlphaThreshold)
	if !ok {
		stats.Empty = true
		box = models.SubjectBox{X1: bounds.Min.X, Y1: bounds.Min.Y, X2: bounds.Max.X, Y2: bounds.Max.Y}
	} else {
		box = pad(box, p.Padding, bounds)
	}
	stats.Box = box
	stats.Square = SquareRegion(box.Rect(), bounds)

	canvas := image.NewNRGBA(image.Rect(0, 0, p.TargetSize, p.TargetSize))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)

	src := stats.Square
	if src.Empty() || p.TargetSize <= 0 {
		return canvas, stats
	}

	dst := fitRect(src.Dx(), src.Dy(), p.TargetSize)
	draw.CatmullRom.Scale(canvas, dst, img, src, draw.Over, nil)
	return canvas, stats
}

// FillFor returns the canvas colour for a panel: transparent when it has any
// transparency, white when it is fully opaque
func FillFor(img *image.NRGBA) color.Color {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for i := 3; i < len(row); i += 4 {
			if row[i] != 0xff {
				return color.Transparent
			}
		}
	}
	return color.White
}

func pad(box models.SubjectBox, padding int, bounds image.Rectangle) models.SubjectBox {
	r := image.Rect(box.X1-padding, box.Y1-padding, box.X2+padding, box.Y2+padding).Intersect(bounds)
	return models.SubjectBox{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// fitRect scales a w×h region to fit a size×size square, preserving aspect,
// and centres it
func fitRect(w, h, size int) image.Rectangle {
	dw, dh := size, size
	if w > h {
		dh = max(1, h*size/w)
	} else if h > w {
		dw = max(1, w*size/h)
	}
	x0 := (size - dw) / 2
	y0 := (size - dh) / 2
	return image.Rect(x0, y0, x0+dw, y0+dh)
}
