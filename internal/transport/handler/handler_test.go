package handler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/isntfunny/kitchenpace-sub002/internal/config"
	"github.com/isntfunny/kitchenpace-sub002/internal/entities"
	"github.com/isntfunny/kitchenpace-sub002/internal/processor"
	"github.com/isntfunny/kitchenpace-sub002/internal/r2"
	"github.com/isntfunny/kitchenpace-sub002/internal/transport/handler"
	"github.com/isntfunny/kitchenpace-sub002/internal/transport/router"
	use_case "github.com/isntfunny/kitchenpace-sub002/internal/use-case"
	webp_converter "github.com/isntfunny/kitchenpace-sub002/internal/webp-converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUseCase struct {
	thumb     entities.Thumbnail
	thumbErr  error
	variants  []entities.Variant
	listErr   error
	image     entities.Image
	uploadErr error

	gotParams  entities.ThumbnailParams
	thumbCalls int
	uploads    int
}

func (s *stubUseCase) GetThumbnail(_ context.Context, p entities.ThumbnailParams) (entities.Thumbnail, error) {
	s.thumbCalls++
	s.gotParams = p
	return s.thumb, s.thumbErr
}

func (s *stubUseCase) ListVariants(context.Context, string) ([]entities.Variant, error) {
	return s.variants, s.listErr
}

func (s *stubUseCase) UploadImage(context.Context, []byte, string, string, handler.UploadImageParams) (entities.Image, error) {
	s.uploads++
	return s.image, s.uploadErr
}

func (s *stubUseCase) CacheControl() string { return "public, max-age=86400" }

// memStore is an in-memory object store with call counters.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	puts    int
}

func (m *memStore) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("failed to download %q: %w", key, r2.ErrNotFound)
	}
	return data, nil
}

func (m *memStore) PutObject(_ context.Context, key string, payload []byte, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.objects[key] = payload
	return nil
}

func testConfig() *config.Config {
	return config.NewConfig()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetThumbnailMissingKey(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	uc := use_case.New(store, processor.NewSmartCropper(), webp_converter.Converter{})
	r := router.NewRouter(handler.New(uc, testConfig()))

	for _, target := range []string{"/api/thumbnail", "/api/thumbnail?key=", "/api/thumbnail?width=200"} {
		rec := serve(r, httptest.NewRequest(http.MethodGet, target, nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), target)
		assert.JSONEq(t, `{"error":"Missing key parameter"}`, rec.Body.String(), target)
	}
	assert.Zero(t, store.gets)
	assert.Zero(t, store.puts)
}

func TestGetThumbnailMissThenHit(t *testing.T) {
	store := &memStore{objects: map[string][]byte{"recipes/abc.jpg": jpegBytes(t, 320, 240)}}
	uc := use_case.New(store, processor.NewSmartCropper(), webp_converter.Converter{})
	r := router.NewRouter(handler.New(uc, testConfig()))

	target := "/api/thumbnail?key=recipes/abc.jpg&width=200&height=150&quality=70"

	first := serve(r, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "image/webp", first.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", first.Header().Get("Cache-Control"))
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, fmt.Sprint(first.Body.Len()), first.Header().Get("Content-Length"))

	require.Contains(t, store.objects, "cache/abc-200x150-q70-cover.webp")

	second := serve(r, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, 1, store.puts)
}

func TestGetThumbnailUnknownOriginal(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	uc := use_case.New(store, processor.NewSmartCropper(), webp_converter.Converter{})
	r := router.NewRouter(handler.New(uc, testConfig()))

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/thumbnail?key=recipes/nope.jpg", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to process image"}`, rec.Body.String())
	assert.Zero(t, store.puts)
}

func TestGetThumbnailParams(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantParams entities.ThumbnailParams
		wantFields []string
	}{
		{
			name:       "defaults",
			query:      "key=recipes/abc.jpg",
			wantStatus: http.StatusOK,
			wantParams: entities.ThumbnailParams{Key: "recipes/abc.jpg", Width: 400, Height: 300, Quality: 80, Fit: entities.FitCover},
		},
		{
			name:       "explicit fit is normalised",
			query:      "key=users/me.png&width=64&height=64&quality=90&fit=CONTAIN",
			wantStatus: http.StatusOK,
			wantParams: entities.ThumbnailParams{Key: "users/me.png", Width: 64, Height: 64, Quality: 90, Fit: entities.FitContain},
		},
		{
			name:       "non numeric width",
			query:      "key=a.jpg&width=abc",
			wantStatus: http.StatusBadRequest,
			wantFields: []string{"width"},
		},
		{
			name:       "zero height and quality over range",
			query:      "key=a.jpg&height=0&quality=101",
			wantStatus: http.StatusBadRequest,
			wantFields: []string{"height", "quality"},
		},
		{
			name:       "width over maximum",
			query:      "key=a.jpg&width=4096",
			wantStatus: http.StatusBadRequest,
			wantFields: []string{"width"},
		},
		{
			name:       "unknown fit",
			query:      "key=a.jpg&fit=stretch",
			wantStatus: http.StatusBadRequest,
			wantFields: []string{"fit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &stubUseCase{thumb: entities.Thumbnail{Data: []byte("webp"), ContentType: "image/webp", CacheStatus: entities.CacheHit}}
			h := handler.New(uc, testConfig())

			rec := httptest.NewRecorder()
			h.GetThumbnail(rec, httptest.NewRequest(http.MethodGet, "/api/thumbnail?"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantParams, uc.gotParams)
				assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
				return
			}

			assert.Zero(t, uc.thumbCalls)
			assert.Contains(t, rec.Body.String(), "Invalid thumbnail parameters")
			for _, f := range tt.wantFields {
				assert.Contains(t, rec.Body.String(), fmt.Sprintf("%q", f))
			}
		})
	}
}

func TestListVariants(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		uc         *stubUseCase
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing key",
			query:      "",
			uc:         &stubUseCase{},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Missing key parameter"}`,
		},
		{
			name:       "registry disabled",
			query:      "key=recipes/abc.jpg",
			uc:         &stubUseCase{listErr: entities.ErrRegistryDisabled},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"error":"Variant registry disabled"}`,
		},
		{
			name:       "registry failure",
			query:      "key=recipes/abc.jpg",
			uc:         &stubUseCase{listErr: errors.New("db down")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Failed to process image"}`,
		},
		{
			name:  "variants",
			query: "key=recipes/abc.jpg",
			uc: &stubUseCase{variants: []entities.Variant{{
				ID: 1, OriginalKey: "recipes/abc.jpg", CacheKey: "cache/abc-400x300-q80-cover.webp",
				Width: 400, Height: 300, Quality: 80, Fit: entities.FitCover, Size: 1234,
			}}},
			wantStatus: http.StatusOK,
			wantBody: `[{"id":1,"original_key":"recipes/abc.jpg","cache_key":"cache/abc-400x300-q80-cover.webp",
				"width":400,"height":300,"quality":80,"fit":"cover","size":1234,"created_timestamp":"0001-01-01T00:00:00Z"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.New(tt.uc, testConfig())

			rec := httptest.NewRecorder()
			h.ListVariants(rec, httptest.NewRequest(http.MethodGet, "/api/thumbnail/variants?"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func multipartBody(t *testing.T, field string, data []byte, folder string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if folder != "" {
		require.NoError(t, mw.WriteField("folder", folder))
	}
	fw, err := mw.CreateFormFile(field, "upload.bin")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	jpg := jpegBytes(t, 16, 16)

	tests := []struct {
		name        string
		field       string
		data        []byte
		folder      string
		uc          *stubUseCase
		wantStatus  int
		wantUploads int
		wantRetry   bool
	}{
		{
			name:        "accepted",
			field:       "image",
			data:        jpg,
			uc:          &stubUseCase{image: entities.Image{Key: "recipes/x.jpg"}},
			wantStatus:  http.StatusAccepted,
			wantUploads: 1,
		},
		{
			name:       "missing file field",
			field:      "file",
			data:       jpg,
			uc:         &stubUseCase{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported type",
			field:      "image",
			data:       []byte("%PDF-1.4 not an image"),
			uc:         &stubUseCase{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown folder",
			field:      "image",
			data:       jpg,
			folder:     "secrets",
			uc:         &stubUseCase{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "queue full",
			field:       "image",
			data:        jpg,
			uc:          &stubUseCase{uploadErr: r2.ErrQueueFull},
			wantStatus:  http.StatusServiceUnavailable,
			wantUploads: 1,
			wantRetry:   true,
		},
		{
			name:        "undecodable image",
			field:       "image",
			data:        jpg,
			uc:          &stubUseCase{uploadErr: entities.ErrInvalidImage},
			wantStatus:  http.StatusBadRequest,
			wantUploads: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.New(tt.uc, testConfig())
			body, contentType := multipartBody(t, tt.field, tt.data, tt.folder)

			req := httptest.NewRequest(http.MethodPost, "/api/images", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			h.UploadImage(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantUploads, tt.uc.uploads)
			if tt.wantRetry {
				assert.Equal(t, "5", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestUploadImageNotMultipart(t *testing.T) {
	uc := &stubUseCase{}
	h := handler.New(uc, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/images", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.UploadImage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, uc.uploads)
}

func TestHealthz(t *testing.T) {
	r := router.NewRouter(handler.New(&stubUseCase{}, testConfig()))

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
