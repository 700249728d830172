package recrop

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewsplit/internal/models"
	"viewsplit/internal/testutil"
)

func TestSubjectBounds(t *testing.T) {
	img := testutil.Blob(50, 40, image.Rect(5, 6, 10, 12), image.Rect(30, 20, 31, 35))

	box, ok := SubjectBounds(img, 0)
	require.True(t, ok)
	assert.Equal(t, models.SubjectBox{X1: 5, Y1: 6, X2: 31, Y2: 35}, box)

	_, ok = SubjectBounds(testutil.Blob(10, 10), 0)
	assert.False(t, ok)
}

func TestSquareRegion(t *testing.T) {
	bounds := image.Rect(0, 0, 400, 400)
	tests := []struct {
		name string
		box  image.Rectangle
		want image.Rectangle
	}{
		{"tall box centred", image.Rect(80, 30, 220, 270), image.Rect(30, 30, 270, 270)},
		{"wide box centred", image.Rect(100, 150, 300, 250), image.Rect(100, 100, 300, 300)},
		{"shifted right at left edge", image.Rect(0, 100, 20, 200), image.Rect(0, 100, 100, 200)},
		{"shifted up at bottom edge", image.Rect(100, 380, 300, 400), image.Rect(100, 200, 300, 400)},
		{"cut to bounds", image.Rect(0, 0, 400, 400), image.Rect(0, 0, 400, 400)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SquareRegion(tt.box, bounds))
		})
	}

	// Larger than the panel on one axis
	got := SquareRegion(image.Rect(0, 20, 300, 80), image.Rect(0, 0, 300, 100))
	assert.Equal(t, image.Rect(0, 0, 300, 100), got)
}

func TestRecropCentresSubject(t *testing.T) {
	// 100×200 subject in a 400×400 panel: padded box is 140×240, square 240
	img := testutil.Blob(400, 400, image.Rect(100, 50, 200, 250))

	out, stats := Recrop(img, Params{TargetSize: 480, Padding: 20}, color.Transparent)

	require.False(t, stats.Empty)
	assert.Equal(t, models.SubjectBox{X1: 80, Y1: 30, X2: 220, Y2: 270}, stats.Box)
	assert.Equal(t, image.Rect(30, 30, 270, 270), stats.Square)
	assert.Equal(t, image.Rect(0, 0, 480, 480), out.Bounds())

	// Scale factor 2: subject spans x 140..340 and y 40..440
	fg := testutil.AlphaBounds(out, 128)
	cx := (fg.Min.X + fg.Max.X) / 2
	cy := (fg.Min.Y + fg.Max.Y) / 2
	assert.InDelta(t, 240, cx, 2)
	assert.InDelta(t, 240, cy, 2)
	assert.InDelta(t, 200, fg.Dx(), 4)
	assert.InDelta(t, 400, fg.Dy(), 4)

	assert.Equal(t, uint8(0), out.NRGBAAt(5, 5).A)
}

func TestRecropDimensionInvariant(t *testing.T) {
	panels := []*image.NRGBA{
		testutil.Blob(37, 91, image.Rect(3, 3, 30, 80)),
		testutil.Blob(500, 120, image.Rect(10, 10, 490, 110)),
		testutil.Blob(64, 64, image.Rect(60, 60, 64, 64)),
		testutil.Blob(20, 20),
		testutil.Solid(33, 17, testutil.Gutter),
	}
	for i, img := range panels {
		out, _ := Recrop(img, Params{TargetSize: 128, Padding: 5}, FillFor(img))
		if out.Bounds() != image.Rect(0, 0, 128, 128) {
			t.Errorf("Panel %d: expected 128×128, got %v", i, out.Bounds())
		}
	}
}

func TestRecropEmptyUsesFullPanel(t *testing.T) {
	img := testutil.Blob(60, 30)
	out, stats := Recrop(img, Params{TargetSize: 64, Padding: 20}, color.Transparent)

	assert.True(t, stats.Empty)
	assert.Equal(t, models.SubjectBox{X1: 0, Y1: 0, X2: 60, Y2: 30}, stats.Box)
	assert.Equal(t, image.Rect(0, 0, 60, 30), stats.Square)
	assert.Equal(t, image.Rect(0, 0, 64, 64), out.Bounds())
}

func TestRecropOpaquePanelOnWhite(t *testing.T) {
	img := testutil.Solid(100, 50, testutil.PanelColors[0])
	fill := FillFor(img)
	require.Equal(t, color.White, fill)

	out, _ := Recrop(img, Params{TargetSize: 100, Padding: 0}, fill)

	// 100×50 scaled into the middle band, white above and below
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, out.NRGBAAt(50, 5))
	got, want := out.NRGBAAt(50, 50), testutil.PanelColors[0]
	assert.InDelta(t, want.R, got.R, 1)
	assert.InDelta(t, want.G, got.G, 1)
	assert.InDelta(t, want.B, got.B, 1)
	assert.Equal(t, uint8(255), got.A)
}

func TestFillFor(t *testing.T) {
	assert.Equal(t, color.Transparent, FillFor(testutil.Blob(4, 4, image.Rect(0, 0, 2, 2))))
	assert.Equal(t, color.White, FillFor(testutil.Solid(4, 4, testutil.Gutter)))
}
