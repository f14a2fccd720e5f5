package webp_converter

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/isntfunny/kitchenpace-sub002/internal/entities"
)

type Converter struct{}

// RenderVariant extracts region from img, scales it to exactly width x height
// according to fit and encodes the result as lossy WebP.
func (Converter) RenderVariant(img image.Image, region image.Rectangle, p entities.ThumbnailParams) ([]byte, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", p.Width, p.Height)
	}

	src := img
	if !region.Empty() && region != img.Bounds() {
		src = imaging.Crop(img, region)
	}

	var out image.Image
	switch p.Fit {
	case entities.FitContain:
		fitted := imaging.Fit(src, p.Width, p.Height, imaging.Lanczos)
		canvas := imaging.New(p.Width, p.Height, color.NRGBA{})
		out = imaging.PasteCenter(canvas, fitted)
	case entities.FitFill:
		out = imaging.Resize(src, p.Width, p.Height, imaging.Lanczos)
	default:
		out = imaging.Fill(src, p.Width, p.Height, imaging.Center, imaging.Lanczos)
	}

	return ToWebP(out, p.Quality)
}

// ToWebP encodes img as lossy WebP.
func ToWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, fmt.Errorf("error encoding to webp: %v", err)
	}
	return buf.Bytes(), nil
}
