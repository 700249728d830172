package pipeline

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewsplit/internal/models"
	"viewsplit/internal/testutil"
	"viewsplit/pkg/isolation"
	"viewsplit/pkg/layout"
)

func testParams(t *testing.T) Params {
	t.Helper()
	p := DefaultParams()
	p.Workers = 2
	p.Recrop.TargetSize = 128

	remover, err := isolation.New(isolation.DefaultBackendConfig())
	require.NoError(t, err)
	p.Remover = remover
	return p
}

func TestProcessLinearSheet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end run in short mode")
	}

	img, _, _ := testutil.GridComposite(1, 4, 200, 20, 10)
	result, err := New(testParams(t)).Process(context.Background(), img)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, models.SourceAxis, result.Layout.Source)
	assert.Equal(t, 1, result.Layout.Rows)
	assert.Equal(t, 4, result.Layout.Cols)
	assert.Empty(t, result.DegradedViews)

	require.Len(t, result.Outputs, 4)
	for i, view := range []string{"front", "right", "back", "left"} {
		out := result.Outputs[i]
		assert.Equal(t, view, out.View)
		assert.False(t, out.Degraded, view)
		require.NotNil(t, out.Image, view)
		assert.Equal(t, image.Rect(0, 0, 128, 128), out.Image.Bounds(), view)

		// The gutter is matted out, the subject fills the centre
		c := out.Image.NRGBAAt(64, 64)
		want := testutil.PanelColors[i]
		assert.Equal(t, uint8(255), c.A, view)
		assert.InDelta(t, want.R, c.R, 2, view)
		assert.InDelta(t, want.G, c.G, 2, view)
		assert.InDelta(t, want.B, c.B, 2, view)
	}
}

func TestProcessIsolationFailureDegrades(t *testing.T) {
	img, _, _ := testutil.GridComposite(1, 4, 60, 10, 5)

	p := testParams(t)
	p.ForceRows, p.ForceCols = 1, 4
	p.Remover = isolation.RemoverFunc(func(context.Context, image.Image) (image.Image, error) {
		return nil, errors.New("matting server unavailable")
	})

	result, err := New(p).Process(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, []string{"front", "right", "back", "left"}, result.DegradedViews)
	for _, out := range result.Outputs {
		assert.True(t, out.Degraded)
		assert.Contains(t, out.Warnings, models.WarnIsolation)
		assert.Equal(t, image.Rect(0, 0, 128, 128), out.Image.Bounds())
		// Opaque panels are framed on white
		assert.Equal(t, uint8(255), out.Image.NRGBAAt(0, 0).A)
	}
}

func TestProcessEmptyForeground(t *testing.T) {
	img := testutil.Solid(200, 100, testutil.Gutter)

	p := testParams(t)
	p.ForceRows, p.ForceCols = 1, 2
	p.Remover = isolation.RemoverFunc(func(_ context.Context, in image.Image) (image.Image, error) {
		return image.NewNRGBA(in.Bounds()), nil
	})

	result, err := New(p).Process(context.Background(), img)
	require.NoError(t, err)

	require.Len(t, result.Outputs, 2)
	for _, out := range result.Outputs {
		assert.True(t, out.Degraded)
		assert.Equal(t, []string{models.WarnEmptyForeground}, out.Warnings)
	}
	assert.Equal(t, []string{"front", "back"}, result.DegradedViews)
}

func TestProcessPanelCountMatchesLayout(t *testing.T) {
	img, _, _ := testutil.GridComposite(2, 2, 80, 10, 5)

	for _, shape := range layout.SupportedShapes() {
		p := testParams(t)
		p.Remover = nil
		p.Recrop.TargetSize = 32
		p.ForceRows, p.ForceCols = shape.Rows, shape.Cols

		result, err := New(p).Process(context.Background(), img)
		require.NoError(t, err, shape.String())

		assert.Equal(t, models.SourceForced, result.Layout.Source)
		assert.Len(t, result.Outputs, shape.Rows*shape.Cols, shape.String())
		views, _ := layout.ViewsFor(shape.Rows, shape.Cols)
		for i, out := range result.Outputs {
			assert.Equal(t, views[i], out.View)
			assert.Equal(t, image.Rect(0, 0, 32, 32), out.Image.Bounds())
		}
	}
}

func TestProcessForcedUnsupportedShape(t *testing.T) {
	p := testParams(t)
	p.ForceRows, p.ForceCols = 3, 3

	_, err := New(p).Process(context.Background(), testutil.Solid(90, 90, testutil.Gutter))
	assert.ErrorIs(t, err, layout.ErrUnsupportedShape)
}

func TestProcessTinyImageIsSingleView(t *testing.T) {
	p := testParams(t)
	p.Remover = nil

	result, err := New(p).Process(context.Background(), testutil.Solid(3, 3, testutil.Gutter))
	require.NoError(t, err)

	assert.Equal(t, models.SourceTrivial, result.Layout.Source)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, "front", result.Outputs[0].View)
}

func TestProcessDegenerateInput(t *testing.T) {
	pl := New(testParams(t))

	_, err := pl.Process(context.Background(), image.NewNRGBA(image.Rect(0, 0, 0, 10)))
	assert.ErrorIs(t, err, ErrDegenerateInput)

	_, err = pl.Process(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	img, _, _ := testutil.GridComposite(1, 4, 60, 10, 5)
	_, err := New(testParams(t)).Process(ctx, img)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessCancelledBetweenPanels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	img, _, _ := testutil.GridComposite(1, 4, 60, 10, 5)
	p := testParams(t)
	p.Workers = 1
	p.ForceRows, p.ForceCols = 1, 4
	p.Remover = isolation.RemoverFunc(func(_ context.Context, in image.Image) (image.Image, error) {
		cancel()
		return in, nil
	})

	_, err := New(p).Process(ctx, img)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestProcessCancelledDuringIsolation cancels once every panel task is
// already inside the backend
func TestProcessCancelledDuringIsolation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	img, _, _ := testutil.GridComposite(1, 4, 60, 10, 5)
	p := testParams(t)
	p.Workers = 4
	p.Isolation.MaxInFlight = 4
	p.ForceRows, p.ForceCols = 1, 4

	var started atomic.Int32
	p.Remover = isolation.RemoverFunc(func(ctx context.Context, _ image.Image) (image.Image, error) {
		if started.Add(1) == 4 {
			cancel()
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	result, err := New(p).Process(ctx, img)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Equal(t, int32(4), started.Load())
}

func TestProcessSavesIntermediaryResults(t *testing.T) {
	dir := t.TempDir()
	img, _, _ := testutil.GridComposite(1, 2, 60, 10, 5)

	p := testParams(t)
	p.ForceRows, p.ForceCols = 1, 2
	p.SaveIntermediaryResults = true
	p.IntermediaryDir = dir

	result, err := New(p).Process(context.Background(), img)
	require.NoError(t, err)

	runDir := filepath.Join(dir, result.RunID)
	for _, file := range []string{
		"01_layout/000_overlay.png",
		"02_panels/000_front.png",
		"02_panels/001_back.png",
		"03_isolated/000_front.png",
		"03_isolated/001_back.png",
		"04_cleaned/000_front.png",
		"04_cleaned/001_back.png",
	} {
		_, err := os.Stat(filepath.Join(runDir, file))
		assert.NoError(t, err, file)
	}
}
