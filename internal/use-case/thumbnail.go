package use_case

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/isntfunny/kitchenpace-sub002/internal/cache"
	"github.com/isntfunny/kitchenpace-sub002/internal/entities"
	"github.com/isntfunny/kitchenpace-sub002/internal/metrics"
	"github.com/isntfunny/kitchenpace-sub002/internal/processor"
	"github.com/isntfunny/kitchenpace-sub002/internal/r2"
	"go.uber.org/zap"
)

// CacheControl is the directive stored with and served for every variant.
func (c *useCase) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d", c.cacheMaxAge)
}

// GetThumbnail returns the variant described by p, rendering and storing it
// on first request. Concurrent misses for the same variant both render and
// both write; the content is identical so the last write wins.
func (c *useCase) GetThumbnail(ctx context.Context, p entities.ThumbnailParams) (entities.Thumbnail, error) {
	if p.Key == "" {
		return entities.Thumbnail{}, entities.ErrMissingKey
	}

	cacheKey := p.CacheKey()
	log := c.log.With(zap.String("key", p.Key), zap.String("cache_key", cacheKey))

	if data, ok := c.lookup(ctx, cacheKey, log); ok {
		return hit(data), nil
	}

	original, err := c.store.GetObject(ctx, p.Key)
	if err != nil {
		if errors.Is(err, r2.ErrNotFound) {
			return entities.Thumbnail{}, fmt.Errorf("%w: %s", entities.ErrOriginalNotFound, p.Key)
		}
		return entities.Thumbnail{}, fmt.Errorf("fetch original: %w", err)
	}

	data, err := c.render(original, p, log)
	if err != nil {
		return entities.Thumbnail{}, err
	}

	c.persist(ctx, p, cacheKey, data, log)

	metrics.RecordThumbnail(string(entities.CacheMiss), "render")
	return entities.Thumbnail{
		Data:        data,
		ContentType: entities.WebPContentType,
		CacheStatus: entities.CacheMiss,
	}, nil
}

// lookup checks the L1 cache, then object storage. Lookup errors other than
// absence are logged and treated as a miss.
func (c *useCase) lookup(ctx context.Context, cacheKey string, log *zap.Logger) ([]byte, bool) {
	if c.cache != nil {
		data, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			metrics.RecordThumbnail(string(entities.CacheHit), "redis")
			return data, true
		case !errors.Is(err, cache.ErrCacheMiss):
			log.Warn("l1 cache lookup failed", zap.Error(err))
		}
	}

	data, err := c.store.GetObject(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, r2.ErrNotFound) {
			log.Warn("cache lookup failed", zap.Error(err))
		}
		return nil, false
	}

	metrics.RecordThumbnail(string(entities.CacheHit), "storage")
	if c.cache != nil {
		if err := c.cache.Store(ctx, cacheKey, c.cacheMaxAge, data); err != nil {
			log.Warn("l1 cache backfill failed", zap.Error(err))
		}
	}
	return data, true
}

func (c *useCase) render(original []byte, p entities.ThumbnailParams, log *zap.Logger) ([]byte, error) {
	start := time.Now()

	img, err := processor.Decode(original)
	if err != nil {
		return nil, fmt.Errorf("decode original %s: %w", p.Key, err)
	}
	w, h := processor.GetBounds(img)
	log.Debug("rendering variant", zap.Int("original_width", w), zap.Int("original_height", h))

	region := img.Bounds()
	if p.Fit == entities.FitCover {
		region, err = c.cropper.ComputeCrop(img, p.Width, p.Height)
		if err != nil {
			return nil, fmt.Errorf("smart crop %s: %w", p.Key, err)
		}
	}

	data, err := c.renderer.RenderVariant(img, region, p)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", p.Key, err)
	}

	metrics.RecordRender(string(p.Fit), time.Since(start))
	return data, nil
}

// persist stores a freshly rendered variant. Failures never fail the request:
// the caller still gets the rendered bytes and the next request renders again.
func (c *useCase) persist(ctx context.Context, p entities.ThumbnailParams, cacheKey string, data []byte, log *zap.Logger) {
	if err := c.store.PutObject(ctx, cacheKey, data, entities.WebPContentType, c.CacheControl()); err != nil {
		metrics.RecordCacheWriteFailure()
		log.Error("cache write failed", zap.Error(err))
		sentry.CaptureException(err)
		return
	}

	if c.cache != nil {
		if err := c.cache.Store(ctx, cacheKey, c.cacheMaxAge, data); err != nil {
			log.Warn("l1 cache store failed", zap.Error(err))
		}
	}

	if c.registry != nil {
		err := c.registry.RecordVariant(ctx, entities.Variant{
			OriginalKey: p.Key,
			CacheKey:    cacheKey,
			Width:       p.Width,
			Height:      p.Height,
			Quality:     p.Quality,
			Fit:         p.Fit,
			Size:        len(data),
		})
		if err != nil {
			log.Warn("variant registry write failed", zap.Error(err))
		}
	}
}

// ListVariants returns the registry rows of every variant rendered from key.
func (c *useCase) ListVariants(ctx context.Context, key string) ([]entities.Variant, error) {
	if key == "" {
		return nil, entities.ErrMissingKey
	}
	if c.registry == nil {
		return nil, entities.ErrRegistryDisabled
	}
	return c.registry.ListVariants(ctx, key)
}

func hit(data []byte) entities.Thumbnail {
	return entities.Thumbnail{
		Data:        data,
		ContentType: entities.WebPContentType,
		CacheStatus: entities.CacheHit,
	}
}
