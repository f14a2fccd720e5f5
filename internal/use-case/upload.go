package use_case

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/isntfunny/kitchenpace-sub002/internal/entities"
	"github.com/isntfunny/kitchenpace-sub002/internal/queue"
	"github.com/isntfunny/kitchenpace-sub002/internal/transport/handler"
	"go.uber.org/zap"
)

// UploadImage queues an original for storage under {folder}/{uuid}{ext} and,
// once stored, schedules a warm-up of its default thumbnail.
func (c *useCase) UploadImage(ctx context.Context, data []byte, ext string, fileType string, params handler.UploadImageParams) (entities.Image, error) {
	if c.uploader == nil {
		return entities.Image{}, entities.ErrUploadsUnavailable
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return entities.Image{}, fmt.Errorf("%w: %v", entities.ErrInvalidImage, err)
	}

	key := fmt.Sprintf("%s/%s%s", params.Folder, uuid.NewString(), strings.ToLower(ext))

	// the upload outlives the request
	bg := context.WithoutCancel(ctx)
	err = c.uploader.UploadWithHook(bg, key, fileType, data, func() {
		c.scheduleWarm(bg, key)
	})
	if err != nil {
		return entities.Image{}, err
	}

	return entities.Image{
		Key:          key,
		MimeType:     fileType,
		Size:         int64(len(data)),
		Width:        cfg.Width,
		Height:       cfg.Height,
		ThumbnailURL: "/api/thumbnail?key=" + url.QueryEscape(key),
	}, nil
}

func (c *useCase) scheduleWarm(ctx context.Context, key string) {
	if c.warm == nil {
		return
	}
	p := c.defaults
	p.Key = key
	if err := c.warm.EnqueueWarm(ctx, queue.NewWarmJob(p)); err != nil {
		c.log.Warn("enqueue warm-up failed", zap.String("key", key), zap.Error(err))
	}
}
