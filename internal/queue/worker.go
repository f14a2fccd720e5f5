package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/isntfunny/kitchenpace-sub002/internal/config"
	"github.com/isntfunny/kitchenpace-sub002/internal/entities"
	"github.com/isntfunny/kitchenpace-sub002/internal/logging"
	"github.com/isntfunny/kitchenpace-sub002/internal/metrics"
	"github.com/isntfunny/kitchenpace-sub002/internal/redisholder"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Thumbnailer interface {
	GetThumbnail(ctx context.Context, p entities.ThumbnailParams) (entities.Thumbnail, error)
}

type Claimer interface {
	Claim(ctx context.Context, cacheKey string, ttl int) (bool, error)
	Release(ctx context.Context, cacheKey string) error
}

type Worker struct {
	rc      redisholder.Source
	cfg     config.WarmupConfig
	thumbs  Thumbnailer
	claimer Claimer
	log     *zap.Logger

	blockTimeout time.Duration
	backoffBase  time.Duration
}

func NewWorker(rc redisholder.Source, cfg config.WarmupConfig, thumbs Thumbnailer, claimer Claimer) *Worker {
	return &Worker{
		rc:      rc,
		cfg:     cfg,
		thumbs:  thumbs,
		claimer: claimer,
		log:     logging.L().With(zap.String("component", "warmup-worker")),

		blockTimeout: cfg.BlockTimeout * time.Second,
		backoffBase:  cfg.BackoffBase * time.Second,
	}
}

func (w *Worker) EnsureGroup(ctx context.Context) error {
	// Without MkStream, Redis would error out if you try to create a group before any messages exist in the stream.
	err := w.rc.Get().XGroupCreateMkStream(ctx, w.cfg.Stream, w.cfg.Group, "0").Err()
	// Redis returns BUSYGROUP if the group already exists therefore we check for other errors
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Start blocks until ctx is canceled or a worker loop fails, and returns
// only after every loop has exited.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to ensure Redis group: %w", err)
	}

	w.log.Info("starting consumer",
		zap.String("group", w.cfg.Group),
		zap.String("stream", w.cfg.Stream),
		zap.Int("workers", w.cfg.Workers),
	)

	w.autoClaim(ctx)

	workers := w.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		consumer := fmt.Sprintf("%s-%d", w.cfg.Consumer, i)
		g.Go(func() error {
			return w.loop(gctx, consumer)
		})
	}

	err := g.Wait()
	w.log.Info("all workers stopped")
	if err != nil {
		return fmt.Errorf("worker loop exited with error: %w", err)
	}
	return ctx.Err()
}

// autoClaim takes ownership of messages that were delivered to a consumer
// which died before XACK, and processes them.
func (w *Worker) autoClaim(ctx context.Context) {
	next := "0-0"

	// A message must be idle at least 30s, and six block timeouts, before it is reclaimed.
	minIdle := 30 * time.Second
	if t := w.blockTimeout * 6; t > minIdle {
		minIdle = t
	}

	for {
		msgs, start, err := w.rc.Get().XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   w.cfg.Stream,
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer + "-0",
			MinIdle:  minIdle,
			Start:    next,
			Count:    100,
		}).Result()
		if err != nil || len(msgs) == 0 {
			return
		}
		for _, m := range msgs {
			_ = w.handle(ctx, m)
		}
		if start == "0-0" {
			return
		}
		next = start
	}
}

func (w *Worker) loop(ctx context.Context, consumer string) error {
	for {
		// XREADGROUP marks delivered messages pending for this consumer until
		// handle() acknowledges them.
		streams, err := w.rc.Get().XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.cfg.Group,
			Consumer: consumer,
			Streams:  []string{w.cfg.Stream, ">"},
			Count:    1,
			Block:    w.blockTimeout,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, redis.Nil) {
				w.log.Warn("read group failed", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		for _, s := range streams {
			for _, m := range s.Messages {
				_ = w.handle(ctx, m)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, m redis.XMessage) error {
	defer w.rc.Get().XAck(ctx, w.cfg.Stream, w.cfg.Group, m.ID)

	raw, ok := m.Values["payload"].(string)
	if !ok {
		metrics.RecordWarmup("invalid")
		w.log.Warn("message without payload", zap.String("id", m.ID))
		return nil
	}
	var job WarmJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		metrics.RecordWarmup("invalid")
		w.log.Warn("malformed payload", zap.String("id", m.ID), zap.Error(err))
		return nil
	}
	attempt := toInt(m.Values["attempt"])

	err := w.process(ctx, job)
	if err == nil {
		return nil
	}

	if attempt+1 >= w.cfg.MaxAttempts {
		metrics.RecordWarmup("dropped")
		w.log.Error("warm-up job dropped", zap.String("key", job.Key), zap.Int("attempts", attempt+1), zap.Error(err))
		sentry.CaptureException(err)
		return nil
	}

	// simple exponential backoff requeue
	metrics.RecordWarmup("retried")
	backoff := w.backoffBase << attempt
	time.AfterFunc(backoff, func() {
		_ = w.rc.Get().XAdd(context.Background(), &redis.XAddArgs{
			Stream: w.cfg.Stream,
			MaxLen: w.cfg.MaxLen,
			Approx: true,
			Values: map[string]any{
				"payload": raw,
				"attempt": attempt + 1,
			},
		}).Err()
	})
	return err
}

func (w *Worker) process(ctx context.Context, job WarmJob) error {
	p := job.Params()
	cacheKey := p.CacheKey()

	if w.claimer != nil {
		ok, err := w.claimer.Claim(ctx, cacheKey, w.cfg.ClaimTTL)
		if err != nil {
			return fmt.Errorf("claim %s: %w", cacheKey, err)
		}
		if !ok {
			metrics.RecordWarmup("skipped")
			return nil
		}
		defer func() { _ = w.claimer.Release(ctx, cacheKey) }()
	}

	thumb, err := w.thumbs.GetThumbnail(ctx, p)
	if err != nil {
		return fmt.Errorf("warm %s: %w", cacheKey, err)
	}

	metrics.RecordWarmup("done")
	w.log.Debug("variant warmed", zap.String("cache_key", cacheKey), zap.String("cache", string(thumb.CacheStatus)))
	return nil
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case string:
		x, _ := strconv.Atoi(t)
		return x
	default:
		return 0
	}
}
