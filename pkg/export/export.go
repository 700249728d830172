// Package export reads composite images and writes view images to disk.
package export

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"viewsplit/internal/models"
)

// Load decodes an image file in any registered format
func Load(path string) (image.Image, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, format, nil
}

// SavePNG encodes img to filename, creating parent directories as needed
func SavePNG(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return file.Close()
}

// FileName returns the output file name for one view
func FileName(base, view string) string {
	return fmt.Sprintf("%s_%s.png", base, view)
}

// BaseName strips directory and extension from an input path
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Save writes every output of result to dir as {base}_{view}.png and
// returns the written paths in output order
func Save(result *models.Result, dir, base string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(result.Outputs))
	for _, out := range result.Outputs {
		if out.Image == nil {
			continue
		}
		path := filepath.Join(dir, FileName(base, out.View))
		if err := SavePNG(out.Image, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

var (
	dividerColor = color.NRGBA{R: 255, G: 0, B: 255, A: 255}
	overlapColor = color.NRGBA{R: 0, G: 200, B: 255, A: 255}
)

// DrawLayout returns a copy of img with the detected dividers drawn as
// magenta lines and each panel's expanded crop outlined in cyan
func DrawLayout(img image.Image, h models.LayoutHypothesis, panels []models.Panel) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	for _, x := range h.ColDividers {
		fillRect(out, image.Rect(x-1, 0, x+2, b.Dy()), dividerColor)
	}
	for _, y := range h.RowDividers {
		fillRect(out, image.Rect(0, y-1, b.Dx(), y+2), dividerColor)
	}
	for _, p := range panels {
		outline(out, p.Rect.Sub(b.Min), overlapColor)
	}
	return out
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func outline(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), c)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), c)
	fillRect(img, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), c)
}
