package use_case

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/isntfunny/kitchenpace-sub002/internal/cache"
	"github.com/isntfunny/kitchenpace-sub002/internal/entities"
	"github.com/isntfunny/kitchenpace-sub002/internal/queue"
	"github.com/isntfunny/kitchenpace-sub002/internal/r2"
	"github.com/stretchr/testify/require"
)

type storedObject struct {
	data         []byte
	contentType  string
	cacheControl string
}

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string]storedObject
	gets    []string
	puts    []string
	getErr  map[string]error
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]storedObject{}, getErr: map[string]error{}}
}

func (m *memStore) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets = append(m.gets, key)
	if err := m.getErr[key]; err != nil {
		return nil, err
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("failed to download %q: %w", key, r2.ErrNotFound)
	}
	return obj.data, nil
}

func (m *memStore) PutObject(_ context.Context, key string, payload []byte, contentType, cacheControl string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, key)
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = storedObject{data: payload, contentType: contentType, cacheControl: cacheControl}
	return nil
}

func (m *memStore) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = storedObject{data: data}
}

func (m *memStore) object(key string) (storedObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

type memCache struct {
	mu     sync.Mutex
	values map[string][]byte
	ttls   map[string]int
}

func newMemCache() *memCache {
	return &memCache{values: map[string][]byte{}, ttls: map[string]int{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Store(_ context.Context, key string, ttl int, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

type memRegistry struct {
	mu       sync.Mutex
	variants []entities.Variant
	err      error
}

func (r *memRegistry) RecordVariant(_ context.Context, v entities.Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.variants = append(r.variants, v)
	return nil
}

func (r *memRegistry) ListVariants(_ context.Context, key string) ([]entities.Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.Variant
	for _, v := range r.variants {
		if v.OriginalKey == key {
			out = append(out, v)
		}
	}
	return out, nil
}

// syncUploader stores immediately and runs the hook inline.
type syncUploader struct {
	store *memStore
	err   error
}

func (u *syncUploader) UploadWithHook(ctx context.Context, key string, contentType string, payload []byte, onSuccess func()) error {
	if u.err != nil {
		return u.err
	}
	if err := u.store.PutObject(ctx, key, payload, contentType, ""); err != nil {
		return err
	}
	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

type memQueue struct {
	mu   sync.Mutex
	jobs []queue.WarmJob
}

func (q *memQueue) EnqueueWarm(_ context.Context, job queue.WarmJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

// countingCropper records whether the smart crop ran.
type countingCropper struct {
	inner Cropper
	calls int
}

func (c *countingCropper) ComputeCrop(img image.Image, width, height int) (image.Rectangle, error) {
	c.calls++
	return c.inner.ComputeCrop(img, width, height)
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}
