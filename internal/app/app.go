package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/isntfunny/kitchenpace-sub002/cmd/migrate"
	"github.com/isntfunny/kitchenpace-sub002/internal/cache"
	"github.com/isntfunny/kitchenpace-sub002/internal/config"
	"github.com/isntfunny/kitchenpace-sub002/internal/entities"
	"github.com/isntfunny/kitchenpace-sub002/internal/logging"
	"github.com/isntfunny/kitchenpace-sub002/internal/processor"
	"github.com/isntfunny/kitchenpace-sub002/internal/queue"
	"github.com/isntfunny/kitchenpace-sub002/internal/r2"
	"github.com/isntfunny/kitchenpace-sub002/internal/redisholder"
	"github.com/isntfunny/kitchenpace-sub002/internal/redismanager"
	"github.com/isntfunny/kitchenpace-sub002/internal/repository/storage"
	"github.com/isntfunny/kitchenpace-sub002/internal/transport/handler"
	"github.com/isntfunny/kitchenpace-sub002/internal/transport/router"
	use_case "github.com/isntfunny/kitchenpace-sub002/internal/use-case"
	webp_converter "github.com/isntfunny/kitchenpace-sub002/internal/webp-converter"
	"go.uber.org/zap"
)

type App struct {
	HttpServer *http.Server

	cfg     *config.Config
	storage *r2.S3
	closers []func()
	worker  *queue.Worker
}

// New wires every dependency. Postgres and Redis are optional: without a DSN
// the variant registry is disabled, without Redis nodes the L1 cache and the
// warm-up worker are.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.L()
	a := &App{cfg: cfg}

	r2Storage, err := r2.NewStorage(ctx, &cfg.R2)
	if err != nil {
		return nil, err
	}
	a.storage = r2Storage

	defaults := entities.ThumbnailParams{
		Width:   cfg.Thumbnail.DefaultWidth,
		Height:  cfg.Thumbnail.DefaultHeight,
		Quality: cfg.Thumbnail.DefaultQuality,
		Fit:     entities.Fit(cfg.Thumbnail.DefaultFit),
	}
	opts := []use_case.Option{
		use_case.WithUploader(r2Storage),
		use_case.WithCacheMaxAge(cfg.Thumbnail.CacheMaxAge),
		use_case.WithDefaults(defaults),
	}

	if cfg.Database.DSN != "" {
		if err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}

		repo, err := storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		opts = append(opts, use_case.WithRegistry(repo))
	} else {
		log.Info("no database configured, variant registry disabled")
	}

	var holder *redisholder.Holder
	if len(cfg.Redis.Nodes) > 0 {
		holder, err = redisholder.Build(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = holder.Close() })
		opts = append(opts, use_case.WithCache(cache.NewCache("kuechentakt:thumbs", holder)))

		if cfg.Warmup.Enabled {
			opts = append(opts, use_case.WithWarmQueue(queue.NewProducer(holder, cfg.Warmup.Stream, cfg.Warmup.MaxLen)))
		}
	} else {
		log.Info("no redis nodes configured, l1 cache and warm-up disabled")
	}

	uc := use_case.New(r2Storage, processor.NewSmartCropper(), webp_converter.Converter{}, opts...)

	if holder != nil && cfg.Warmup.Enabled {
		a.worker = queue.NewWorker(holder, cfg.Warmup, uc, redismanager.NewManager(holder))
	}

	h := handler.New(uc, cfg)
	r := router.NewRouter(h)

	a.HttpServer = &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	return a, nil
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	log := logging.L()

	var workerDone chan struct{}
	if a.worker != nil {
		workerDone = make(chan struct{})
		go func() {
			defer close(workerDone)
			if err := a.worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("warm-up worker stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", a.HttpServer.Addr))
		errCh <- a.HttpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		a.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout*time.Second)
	defer cancel()

	err := a.HttpServer.Shutdown(shutdownCtx)
	if workerDone != nil {
		<-workerDone
	}
	a.close()
	return err
}

// close drains the upload pool before closing redis, so upload hooks can still
// enqueue warm-up jobs.
func (a *App) close() {
	a.storage.Close()
	for _, c := range a.closers {
		c()
	}
}
