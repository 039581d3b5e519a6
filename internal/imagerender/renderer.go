package imagerender

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Renderer rasterises PDF pages to JPEG with MuPDF.
type Renderer struct {
	DPI     int
	Quality int
	Color   ColorMode
}

// New returns a Renderer, filling in 150 DPI and quality 85 for zero values.
func New(dpi, quality int, color ColorMode) *Renderer {
	if dpi <= 0 {
		dpi = 150
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	if color == "" {
		color = ColorRGB
	}
	return &Renderer{DPI: dpi, Quality: quality, Color: color}
}

// RenderPages renders every page of pdfPath in order and hands each JPEG to
// emit with its 1-based page number. It returns the number of pages rendered.
func (r *Renderer) RenderPages(ctx context.Context, pdfPath string, emit func(page int, jpegBytes []byte) error) (int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		// go-fitz pages are 0-based
		img, err := doc.ImageDPI(i, float64(r.DPI))
		if err != nil {
			return i, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}
		data, err := r.encode(img)
		if err != nil {
			return i, fmt.Errorf("failed to encode page %d: %w", i+1, err)
		}
		log.Debug().
			Int("page", i+1).
			Int("width", img.Bounds().Dx()).
			Int("height", img.Bounds().Dy()).
			Int("jpeg_size", len(data)).
			Msg("rendered page")
		if err := emit(i+1, data); err != nil {
			return i, err
		}
	}
	return n, nil
}

func (r *Renderer) encode(img image.Image) ([]byte, error) {
	final := img
	if r.Color == ColorGray {
		bounds := img.Bounds()
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, image.Point{}, draw.Src)
		final = gray
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: r.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
