package redisholder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/isntfunny/kitchenpace-sub002/internal/config"
	"github.com/isntfunny/kitchenpace-sub002/internal/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var errNoNodes = errors.New("no nodes defined")

// Build connects to Redis, preferring cluster mode, and starts the health loop.
// ctx bounds the initial connection only. The client and its health loop live
// until Close.
func Build(ctx context.Context, cfg *config.RedisConfig) (*Holder, error) {
	var cl redis.UniversalClient
	cl, err := newClusterClient(ctx, cfg)
	if err != nil {
		clusterErr := err
		cl, err = newClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		logging.L().Info("redis: cluster client unavailable, using single-node client", zap.NamedError("cluster_error", clusterErr))
	}

	h := NewHolder(cl)

	go healthLoop(h, cfg)

	return h, nil
}

func healthLoop(h *Holder, cfg *config.RedisConfig) {
	interval := cfg.HealthCheckInterval * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log := logging.L().With(zap.String("component", "redis"))
	log.Info("health loop started", zap.Duration("interval", interval))

	ping := func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := h.Get().Ping(pingCtx).Err()
		cancel()

		if err == nil || h.closed() {
			return
		}
		log.Warn("ping failed, attempting reconnect", zap.Error(err))

		// Rebuild client (cluster first, then fallback)
		dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newCl, newErr := reconnect(dialCtx, cfg)
		cancel()
		if newErr != nil {
			log.Error("reconnect failed", zap.Error(newErr))
			return
		}
		if h.closed() {
			_ = newCl.Close()
			return
		}

		old := h.swap(newCl)
		if old != nil {
			_ = old.Close()
		}
		log.Info("reconnected successfully")
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-h.done:
			log.Info("health loop stopped")
			return
		case <-t.C:
			ping()
		}
	}
}

func reconnect(ctx context.Context, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	cl, err := newClusterClient(ctx, cfg)
	if err == nil {
		return cl, nil
	}
	return newClient(ctx, cfg)
}

func newClusterClient(ctx context.Context, cfg *config.RedisConfig) (*redis.ClusterClient, error) {
	if len(cfg.Nodes) < 2 {
		return nil, errors.New("cluster mode needs at least two nodes")
	}

	nodeAddrs := make([]string, 0, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		nodeAddrs = append(nodeAddrs, node.Addr())
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 20
	}

	cl := redis.NewClusterClient(&redis.ClusterOptions{
		RouteByLatency: true,
		Password:       cfg.Password,
		Addrs:          nodeAddrs,
		DialTimeout:    cfg.DialTimeout * time.Second,
		ReadTimeout:    cfg.ReadTimeout * time.Second,
		WriteTimeout:   cfg.WriteTimeout * time.Second,
		PoolSize:       poolSize,
		PoolTimeout:    30 * time.Second,
		MaxRetries:     3,
	})

	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("error pinging redis cluster: %w", err)
	}

	return cl, nil
}

func newClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	stickyErr := errNoNodes

	for _, node := range cfg.Nodes {
		cl := redis.NewClient(&redis.Options{
			Addr:         node.Addr(),
			Password:     cfg.Password,
			DB:           cfg.DatabaseID,
			DialTimeout:  cfg.DialTimeout * time.Second,
			ReadTimeout:  cfg.ReadTimeout * time.Second,
			WriteTimeout: cfg.WriteTimeout * time.Second,
			PoolSize:     cfg.PoolSize,
		})

		if err := cl.Ping(ctx).Err(); err != nil {
			_ = cl.Close()
			stickyErr = fmt.Errorf("error pinging redis server %s: %w", node.Addr(), err)
			continue
		}

		return cl, nil
	}

	return nil, stickyErr
}
