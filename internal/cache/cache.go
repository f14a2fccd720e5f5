package cache

import (
	"context"
	"errors"
	"time"

	"github.com/isntfunny/kitchenpace-sub002/internal/redisholder"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores encoded thumbnails in Redis under a namespace.
type Cache struct {
	Redis     redisholder.Source
	Namespace string
}

// Get value from Redis. Returns ErrCacheMiss when the key is absent.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.Redis.Get().Get(ctx, c.Namespace+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

// Store data to Redis with a ttl in seconds
func (c *Cache) Store(ctx context.Context, key string, ttl int, value []byte) error {
	return c.Redis.Get().Set(ctx, c.Namespace+":"+key, value, time.Duration(ttl)*time.Second).Err()
}

func NewCache(namespace string, redisCl redisholder.Source) *Cache {
	return &Cache{
		Namespace: namespace,
		Redis:     redisCl,
	}
}
