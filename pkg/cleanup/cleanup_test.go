package cleanup

import (
	"bytes"
	"image"
	"testing"

	"viewsplit/internal/models"
	"viewsplit/internal/testutil"
)

func TestCleanRemovesSmallFragment(t *testing.T) {
	// 100×100 subject and a 10×20 sliver from the neighbouring panel
	subject := image.Rect(50, 50, 150, 150)
	sliver := image.Rect(180, 10, 190, 30)
	img := testutil.Blob(200, 200, subject, sliver)

	stats := Clean(img, DefaultParams())

	if stats.Components != 2 {
		t.Fatalf("Expected 2 components, got %d", stats.Components)
	}
	if stats.LargestArea != 10000 {
		t.Errorf("Expected largest area 10000, got %d", stats.LargestArea)
	}
	if stats.Removed != 1 || stats.RemovedPixels != 200 {
		t.Errorf("Expected 1 fragment of 200 pixels removed, got %d/%d", stats.Removed, stats.RemovedPixels)
	}
	if got := testutil.AlphaBounds(img, 0); got != subject {
		t.Errorf("Expected remaining foreground %v, got %v", subject, got)
	}
	if n := testutil.OpaqueCount(img, 0); n != 10000 {
		t.Errorf("Expected subject to keep 10000 pixels, got %d", n)
	}
	if c := img.NRGBAAt(185, 20); c.R != 0 || c.A != 0 {
		t.Errorf("Expected fragment pixel zeroed, got %v", c)
	}
}

func TestCleanKeepsLargeDetachedComponent(t *testing.T) {
	// 400 px is 4% of 10000, above the 3% ratio
	img := testutil.Blob(200, 200, image.Rect(0, 0, 100, 100), image.Rect(150, 150, 170, 170))

	stats := Clean(img, DefaultParams())

	if stats.Removed != 0 {
		t.Errorf("Expected no fragments removed, got %d", stats.Removed)
	}
	if got := img.NRGBAAt(160, 160).A; got != 255 {
		t.Errorf("Expected detached component preserved, alpha %d", got)
	}
}

func TestCleanIdempotent(t *testing.T) {
	img := testutil.Blob(120, 120,
		image.Rect(10, 10, 90, 90),
		image.Rect(100, 5, 103, 8),
		image.Rect(95, 100, 118, 118),
		image.Rect(2, 110, 4, 112),
	)

	Clean(img, DefaultParams())
	once := append([]uint8(nil), img.Pix...)

	stats := Clean(img, DefaultParams())
	if !bytes.Equal(once, img.Pix) {
		t.Error("Second Clean changed the image")
	}
	if stats.Removed != 0 {
		t.Errorf("Expected nothing removed on the second pass, got %d", stats.Removed)
	}
}

func TestCleanEmptyMask(t *testing.T) {
	img := testutil.Blob(30, 30)
	stats := Clean(img, DefaultParams())

	if !stats.Empty {
		t.Error("Expected Empty for a fully transparent panel")
	}
	if stats.Components != 0 {
		t.Errorf("Expected 0 components, got %d", stats.Components)
	}
}

func TestCleanSingleComponentNoop(t *testing.T) {
	img := testutil.Blob(30, 30, image.Rect(5, 5, 7, 7))
	before := append([]uint8(nil), img.Pix...)

	stats := Clean(img, Params{AlphaThreshold: 10, MinAreaRatio: 0.9})

	if stats.Components != 1 || stats.Removed != 0 {
		t.Errorf("Expected single untouched component, got %+v", stats)
	}
	if !bytes.Equal(before, img.Pix) {
		t.Error("Single component should leave the image unchanged")
	}
}

func TestCleanIgnoresFaintAlpha(t *testing.T) {
	img := testutil.Blob(50, 50, image.Rect(0, 0, 40, 40))
	// A faint halo pixel at alpha 10 is not foreground
	img.Pix[img.PixOffset(45, 45)+3] = 10

	stats := Clean(img, DefaultParams())
	if stats.Components != 1 {
		t.Errorf("Expected faint pixel ignored, got %d components", stats.Components)
	}
}

func TestLabelEightConnectivity(t *testing.T) {
	tests := []struct {
		name  string
		pix   []uint8
		w, h  int
		areas []int
	}{
		{
			name: "diagonal joins",
			w:    3,
			h:    3,
			pix: []uint8{
				255, 0, 0,
				0, 255, 0,
				0, 0, 255,
			},
			areas: []int{3},
		},
		{
			name:  "separated by a gap",
			w:     4,
			h:     1,
			pix:   []uint8{255, 0, 0, 255},
			areas: []int{1, 1},
		},
		{
			name: "ring",
			w:    3,
			h:    3,
			pix: []uint8{
				255, 255, 255,
				255, 0, 255,
				255, 255, 255,
			},
			areas: []int{8},
		},
		{
			name:  "empty",
			w:     2,
			h:     2,
			pix:   []uint8{0, 0, 0, 0},
			areas: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask := models.AlphaMask{Width: tt.w, Height: tt.h, Pix: tt.pix}
			labels, areas := Label(mask, 10)

			if len(areas) != len(tt.areas) {
				t.Fatalf("Expected areas %v, got %v", tt.areas, areas)
			}
			for i := range areas {
				if areas[i] != tt.areas[i] {
					t.Fatalf("Expected areas %v, got %v", tt.areas, areas)
				}
			}
			for i, a := range tt.pix {
				if (a > 10) != (labels[i] != 0) {
					t.Errorf("Pixel %d: alpha %d but label %d", i, a, labels[i])
				}
			}
		})
	}
}
