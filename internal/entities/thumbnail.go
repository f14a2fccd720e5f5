package entities

import (
	"fmt"
	"path"
	"strings"
)

const (
	CachePrefix     = "cache/"
	WebPContentType = "image/webp"
	DefaultWidth    = 400
	DefaultHeight   = 300
	DefaultQuality  = 80
	DefaultFit      = FitCover
)

type Fit string

const (
	FitCover   Fit = "cover"
	FitContain Fit = "contain"
	FitFill    Fit = "fill"
)

func (f Fit) Valid() bool {
	switch f {
	case FitCover, FitContain, FitFill:
		return true
	}
	return false
}

type CacheStatus string

const (
	CacheHit  CacheStatus = "HIT"
	CacheMiss CacheStatus = "MISS"
)

// ThumbnailParams identifies one variant of an original asset.
type ThumbnailParams struct {
	Key     string `validate:"required"`
	Width   int    `validate:"gte=1"`
	Height  int    `validate:"gte=1"`
	Quality int    `validate:"gte=1,lte=100"`
	Fit     Fit    `validate:"oneof=cover contain fill"`
}

// DefaultParams returns the parameters used when a request leaves them out.
func DefaultParams(key string) ThumbnailParams {
	return ThumbnailParams{
		Key:     key,
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		Quality: DefaultQuality,
		Fit:     DefaultFit,
	}
}

// CacheKey derives the storage key of the variant:
// cache/{basename}-{width}x{height}-q{quality}-{fit}.webp
//
// The key depends on the basename only, so originals sharing a filename in
// different folders share variants.
func (p ThumbnailParams) CacheKey() string {
	base := path.Base(p.Key)
	if name := strings.TrimSuffix(base, path.Ext(base)); name != "" {
		base = name
	}
	return fmt.Sprintf("%s%s-%dx%d-q%d-%s.webp", CachePrefix, base, p.Width, p.Height, p.Quality, p.Fit)
}

// Thumbnail is an encoded variant ready to be served.
type Thumbnail struct {
	Data        []byte
	ContentType string
	CacheStatus CacheStatus
}
