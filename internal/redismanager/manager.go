package redismanager

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/isntfunny/kitchenpace-sub002/internal/redisholder"
)

const claimPrefix = "kuechentakt:thumbs:claim:"

// Manager hands out short lived claims on cache keys so that background
// warm-up workers do not render the same variant twice.
type Manager struct {
	client redisholder.Source
}

func NewManager(redisClient redisholder.Source) *Manager {
	return &Manager{
		client: redisClient,
	}
}

// Claim reports whether the caller now owns cacheKey for ttl seconds.
func (m *Manager) Claim(ctx context.Context, cacheKey string, ttl int) (bool, error) {
	return m.client.Get().SetNX(ctx, claimKey(cacheKey), time.Now().Unix(), time.Duration(ttl)*time.Second).Result()
}

// Release drops a claim before its ttl expires.
func (m *Manager) Release(ctx context.Context, cacheKey string) error {
	return m.client.Get().Del(ctx, claimKey(cacheKey)).Err()
}

func claimKey(cacheKey string) string {
	sum := sha1.Sum([]byte(cacheKey))
	return claimPrefix + hex.EncodeToString(sum[:])
}
