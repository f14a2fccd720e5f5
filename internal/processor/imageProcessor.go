package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/chai2010/webp" // registers the webp decoder
	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"
	"github.com/muesli/smartcrop/nfnt"
)

var ErrEmptyImage = errors.New("empty image")

// Decode reads an original asset, applying its EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// SmartCropper selects the most salient region of an image for a target aspect ratio.
type SmartCropper struct {
	analyzer smartcrop.Analyzer
}

func NewSmartCropper() *SmartCropper {
	return &SmartCropper{
		analyzer: smartcrop.NewAnalyzer(nfnt.NewDefaultResizer()),
	}
}

// ComputeCrop returns the top ranked crop of img matching the width:height ratio.
// The rectangle is in img's coordinate space.
func (c *SmartCropper) ComputeCrop(img image.Image, width, height int) (image.Rectangle, error) {
	if width <= 0 || height <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid crop size %dx%d", width, height)
	}

	rect, err := c.analyzer.FindBestCrop(img, width, height)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("error finding crop: %w", err)
	}

	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return img.Bounds(), nil
	}
	return rect, nil
}

// GetBounds returns the pixel dimensions of img.
func GetBounds(img image.Image) (int, int) {
	return img.Bounds().Dx(), img.Bounds().Dy()
}
