package use_case

import (
	"context"
	"image"

	"github.com/isntfunny/kitchenpace-sub002/internal/entities"
	"github.com/isntfunny/kitchenpace-sub002/internal/logging"
	"github.com/isntfunny/kitchenpace-sub002/internal/queue"
	"go.uber.org/zap"
)

// ObjectStore holds originals and rendered variants. GetObject wraps
// r2.ErrNotFound when the key does not exist.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, payload []byte, contentType, cacheControl string) error
}

type Uploader interface {
	UploadWithHook(ctx context.Context, key string, contentType string, payload []byte, onSuccess func()) error
}

type Cropper interface {
	ComputeCrop(img image.Image, width, height int) (image.Rectangle, error)
}

type Renderer interface {
	RenderVariant(img image.Image, region image.Rectangle, p entities.ThumbnailParams) ([]byte, error)
}

type BlobCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, ttl int, value []byte) error
}

type VariantRegistry interface {
	RecordVariant(ctx context.Context, v entities.Variant) error
	ListVariants(ctx context.Context, originalKey string) ([]entities.Variant, error)
}

type WarmQueue interface {
	EnqueueWarm(ctx context.Context, job queue.WarmJob) error
}

type useCase struct {
	store    ObjectStore
	cropper  Cropper
	renderer Renderer

	cache    BlobCache
	registry VariantRegistry
	uploader Uploader
	warm     WarmQueue

	cacheMaxAge int
	defaults    entities.ThumbnailParams
	log         *zap.Logger
}

type Option func(*useCase)

// WithCache puts a Redis byte cache in front of object storage lookups.
func WithCache(c BlobCache) Option {
	return func(u *useCase) { u.cache = c }
}

func WithRegistry(r VariantRegistry) Option {
	return func(u *useCase) { u.registry = r }
}

func WithUploader(up Uploader) Option {
	return func(u *useCase) { u.uploader = up }
}

func WithWarmQueue(q WarmQueue) Option {
	return func(u *useCase) { u.warm = q }
}

// WithCacheMaxAge sets the Cache-Control max-age and L1 ttl in seconds.
func WithCacheMaxAge(seconds int) Option {
	return func(u *useCase) {
		if seconds > 0 {
			u.cacheMaxAge = seconds
		}
	}
}

// WithDefaults sets the variant warmed after an upload.
func WithDefaults(p entities.ThumbnailParams) Option {
	return func(u *useCase) { u.defaults = p }
}

func New(store ObjectStore, cropper Cropper, renderer Renderer, opts ...Option) *useCase {
	u := &useCase{
		store:       store,
		cropper:     cropper,
		renderer:    renderer,
		cacheMaxAge: 86400,
		defaults:    entities.DefaultParams(""),
		log:         logging.L().With(zap.String("component", "thumbnails")),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// CacheMaxAge is the lifetime advertised for rendered variants, in seconds.
func (c *useCase) CacheMaxAge() int {
	return c.cacheMaxAge
}
