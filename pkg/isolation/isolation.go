// Package isolation removes panel backgrounds through a pluggable matting
// backend.
//
// The pipeline only depends on the Remover contract: an opaque image goes in,
// an image with alpha and the same dimensions comes out. Isolator wraps a
// Remover with a per-call timeout and a cap on in-flight calls, and turns any
// failure into an opaque pass-through so a run never aborts on matting.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/semaphore"

	"viewsplit/internal/logging"
)

// Remover is a background-removal capability
type Remover interface {
	// RemoveBackground takes an opaque image and returns one with an alpha
	// channel of identical width and height
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

// RemoverFunc adapts a function to the Remover interface
type RemoverFunc func(ctx context.Context, img image.Image) (image.Image, error)

// RemoveBackground calls f
func (f RemoverFunc) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	return f(ctx, img)
}

// ErrDimensionMismatch is reported when a backend changes the image size
var ErrDimensionMismatch = errors.New("matting result has different dimensions")

// Options bound the cost of isolation calls
type Options struct {
	// Timeout applies to each backend call. Waiting for a free slot is
	// bounded only by the caller's context.
	Timeout time.Duration `yaml:"timeout"`

	// MaxInFlight caps concurrent backend calls
	MaxInFlight int64 `yaml:"maxInFlight"`
}

// DefaultOptions returns a 60s timeout and two concurrent calls
func DefaultOptions() Options {
	return Options{
		Timeout:     60 * time.Second,
		MaxInFlight: 2,
	}
}

// Outcome is the result of isolating one panel
type Outcome struct {
	// Image always has the panel's dimensions and origin (0,0)
	Image *image.NRGBA

	// Degraded is set when Image is the opaque pass-through
	Degraded bool

	// Err holds the backend failure behind a degraded outcome
	Err error
}

// Isolator applies a Remover with timeout, concurrency cap and fallback
type Isolator struct {
	remover Remover
	opts    Options
	sem     *semaphore.Weighted
}

// NewIsolator wraps remover. A nil remover passes every panel through.
func NewIsolator(remover Remover, opts Options) *Isolator {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}
	return &Isolator{
		remover: remover,
		opts:    opts,
		sem:     semaphore.NewWeighted(opts.MaxInFlight),
	}
}

// Isolate removes the background of img. It never fails: on any backend
// error the opaque panel is returned with Degraded set. When ctx itself is
// done, Err is ctx.Err() and callers should abandon the panel.
func (i *Isolator) Isolate(ctx context.Context, view string, img image.Image) Outcome {
	opaque := Opaque(img)
	if i.remover == nil {
		return Outcome{Image: opaque}
	}

	result, err := i.call(ctx, opaque)
	if err != nil && ctx.Err() != nil {
		// Cancelled by the caller, not a backend failure
		return Outcome{Image: opaque, Degraded: true, Err: ctx.Err()}
	}
	if err != nil {
		logging.Logger().Warn("background removal failed, using opaque panel",
			slog.String("view", view),
			slog.Any("error", err))
		return Outcome{Image: opaque, Degraded: true, Err: err}
	}
	return Outcome{Image: result}
}

func (i *Isolator) call(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	if err := i.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for isolation slot: %w", err)
	}

	callCtx := ctx
	if i.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, i.opts.Timeout)
		defer cancel()
	}

	type response struct {
		img image.Image
		err error
	}
	done := make(chan response, 1)

	// The slot is held until the backend returns, even after a timeout,
	// so abandoned calls still count against MaxInFlight
	go func() {
		defer i.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- response{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		out, err := i.remover.RemoveBackground(callCtx, img)
		done <- response{img: out, err: err}
	}()

	select {
	case <-callCtx.Done():
		return nil, fmt.Errorf("background removal: %w", callCtx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if res.img == nil {
			return nil, errors.New("backend returned no image")
		}
		want := img.Bounds().Size()
		if got := res.img.Bounds().Size(); got != want {
			return nil, fmt.Errorf("%w: got %v, want %v", ErrDimensionMismatch, got, want)
		}
		return ToNRGBA(res.img), nil
	}
}

// Opaque copies img into a new NRGBA image with every alpha set to 255
func Opaque(img image.Image) *image.NRGBA {
	out := ToNRGBA(img)
	if out == img {
		out = cloneNRGBA(out)
	}
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// ToNRGBA returns img as an NRGBA image with origin (0,0), converting or
// translating only when needed
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

func cloneNRGBA(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
