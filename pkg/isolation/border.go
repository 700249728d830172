package isolation

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// Background estimators for BorderRemover
const (
	EstimatorDominant = "dominant"
	EstimatorKMeans   = "kmeans"
)

// BorderOptions configures the built-in matting backend
type BorderOptions struct {
	// BorderWidth is the frame, in pixels, sampled for the background colour
	BorderWidth int `yaml:"borderWidth"`

	// Estimator is "dominant" or "kmeans"
	Estimator string `yaml:"estimator"`

	// Clusters is k for the kmeans estimator
	Clusters int `yaml:"clusters"`

	// Tolerance is the Lab distance under which a pixel is background
	Tolerance float64 `yaml:"tolerance"`

	// Softness is the width of the alpha ramp above Tolerance
	Softness float64 `yaml:"softness"`
}

// DefaultBorderOptions returns settings suited to flat reference-sheet backgrounds
func DefaultBorderOptions() BorderOptions {
	return BorderOptions{
		BorderWidth: 4,
		Estimator:   EstimatorDominant,
		Clusters:    3,
		Tolerance:   0.08,
		Softness:    0.06,
	}
}

// BorderRemover mattes out the colour that dominates the panel frame.
//
// Reference sheets are drawn on flat backgrounds, so the frame of each panel
// is almost entirely background. Pixels whose Lab distance to the estimated
// background is below Tolerance become transparent, pixels beyond
// Tolerance+Softness stay opaque, and the band between is ramped.
type BorderRemover struct {
	opts BorderOptions
}

// NewBorderRemover validates opts
func NewBorderRemover(opts BorderOptions) (*BorderRemover, error) {
	if opts.BorderWidth <= 0 {
		return nil, fmt.Errorf("border width must be positive, got %d", opts.BorderWidth)
	}
	if opts.Tolerance < 0 || opts.Softness < 0 {
		return nil, fmt.Errorf("tolerance and softness must not be negative")
	}
	switch opts.Estimator {
	case EstimatorDominant:
	case EstimatorKMeans:
		if opts.Clusters <= 0 {
			return nil, fmt.Errorf("kmeans estimator needs at least one cluster, got %d", opts.Clusters)
		}
	default:
		return nil, fmt.Errorf("unknown background estimator %q", opts.Estimator)
	}
	return &BorderRemover{opts: opts}, nil
}

// RemoveBackground returns a copy of img with background pixels made transparent
func (b *BorderRemover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	src := ToNRGBA(img)
	frame := borderSample(src, b.opts.BorderWidth)
	if len(frame.Pix) == 0 {
		return nil, fmt.Errorf("image %v too small to sample a border", src.Bounds())
	}

	bg, err := b.estimate(frame)
	if err != nil {
		return nil, err
	}

	out := cloneNRGBA(src)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	for y := 0; y < h; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			c := colorful.Color{
				R: float64(px[0]) / 255,
				G: float64(px[1]) / 255,
				B: float64(px[2]) / 255,
			}
			a := b.alpha(c.DistanceLab(bg))
			px[3] = uint8(uint16(px[3]) * uint16(a) / 255)
		}
	}
	return out, nil
}

func (b *BorderRemover) alpha(dist float64) uint8 {
	lo := b.opts.Tolerance
	hi := lo + b.opts.Softness
	switch {
	case dist <= lo:
		return 0
	case dist >= hi:
		return 255
	default:
		return uint8(255 * (dist - lo) / (hi - lo))
	}
}

func (b *BorderRemover) estimate(frame *image.NRGBA) (colorful.Color, error) {
	if b.opts.Estimator == EstimatorKMeans {
		return kmeansBackground(frame, b.opts.Clusters)
	}
	return dominantBackground(frame), nil
}

// dominantBackground picks the heaviest dominant colour of the frame
func dominantBackground(frame *image.NRGBA) colorful.Color {
	candidates := dominantcolor.FindWeight(frame, 3)
	if len(candidates) == 0 {
		c, _ := colorful.MakeColor(dominantcolor.Find(frame))
		return c
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Weight > best.Weight {
			best = c
		}
	}
	col, _ := colorful.MakeColor(best.RGBA)
	return col.Clamped()
}

// kmeansBackground clusters the frame pixels and returns the most populated centre
func kmeansBackground(frame *image.NRGBA, k int) (colorful.Color, error) {
	dataset := make(clusters.Observations, 0, len(frame.Pix)/4)
	for i := 0; i+3 < len(frame.Pix); i += 4 {
		dataset = append(dataset, clusters.Coordinates{
			float64(frame.Pix[i]) / 255,
			float64(frame.Pix[i+1]) / 255,
			float64(frame.Pix[i+2]) / 255,
		})
	}
	k = min(k, len(dataset))

	cc, err := kmeans.New().Partition(dataset, k)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("background clustering failed: %w", err)
	}
	cc = slices.DeleteFunc(cc, func(c clusters.Cluster) bool { return len(c.Center) < 3 })
	if len(cc) == 0 {
		return colorful.Color{}, fmt.Errorf("background clustering produced no clusters")
	}

	best := slices.MaxFunc(cc, func(a, b clusters.Cluster) int {
		return len(a.Observations) - len(b.Observations)
	})
	return colorful.Color{R: best.Center[0], G: best.Center[1], B: best.Center[2]}.Clamped(), nil
}

// borderSample collects the opaque pixels of a width-px frame around img into
// a square image, repeating samples to fill the last row
func borderSample(img *image.NRGBA, width int) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	width = min(width, (w+1)/2, (h+1)/2)

	var px []color.NRGBA
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= width && x < w-width && y >= width && y < h-width {
				x = w - width - 1
				continue
			}
			c := img.NRGBAAt(x, y)
			if c.A == 0 {
				continue
			}
			px = append(px, c)
		}
	}

	if len(px) == 0 {
		return image.NewNRGBA(image.Rectangle{})
	}
	side := int(math.Ceil(math.Sqrt(float64(len(px)))))
	out := image.NewNRGBA(image.Rect(0, 0, side, side))
	for i := 0; i < side*side; i++ {
		out.SetNRGBA(i%side, i/side, px[i%len(px)])
	}
	return out
}
