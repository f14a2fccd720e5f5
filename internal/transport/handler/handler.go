package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/isntfunny/kitchenpace-sub002/internal/config"
	"github.com/isntfunny/kitchenpace-sub002/internal/entities"
	"github.com/isntfunny/kitchenpace-sub002/internal/logging"
	"github.com/isntfunny/kitchenpace-sub002/internal/r2"
	"go.uber.org/zap"
)

const (
	msgMissingKey    = "Missing key parameter"
	msgInvalidParams = "Invalid thumbnail parameters"
	msgProcessFailed = "Failed to process image"
)

type UseCase interface {
	GetThumbnail(ctx context.Context, p entities.ThumbnailParams) (entities.Thumbnail, error)
	ListVariants(ctx context.Context, key string) ([]entities.Variant, error)
	UploadImage(ctx context.Context, data []byte, ext string, fileType string, params UploadImageParams) (entities.Image, error)
	CacheControl() string
}

type Handler struct {
	useCase   UseCase
	cfg       *config.Config
	validator *validator.Validate
}

func New(useCase UseCase, cfg *config.Config) *Handler {
	return &Handler{
		useCase:   useCase,
		cfg:       cfg,
		validator: validator.New(),
	}
}

// GetThumbnail serves GET /api/thumbnail.
func (h *Handler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	key := q.Get("key")
	if key == "" {
		writeJSONError(w, msgMissingKey, http.StatusBadRequest)
		return
	}

	params, fields := h.parseThumbnailParams(key, q.Get("width"), q.Get("height"), q.Get("quality"), q.Get("fit"))
	if len(fields) > 0 {
		writeValidationError(w, msgInvalidParams, fields)
		return
	}

	thumb, err := h.useCase.GetThumbnail(r.Context(), params)
	if err != nil {
		h.internalError(w, r, "thumbnail failed", err, zap.String("key", key), zap.String("cache_key", params.CacheKey()))
		return
	}

	w.Header().Set("Content-Type", entities.WebPContentType)
	w.Header().Set("Cache-Control", h.useCase.CacheControl())
	w.Header().Set("X-Cache", string(thumb.CacheStatus))
	w.Header().Set("Content-Length", strconv.Itoa(len(thumb.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(thumb.Data)
}

func (h *Handler) parseThumbnailParams(key, width, height, quality, fit string) (entities.ThumbnailParams, map[string]string) {
	defaults := h.cfg.Thumbnail
	fields := map[string]string{}

	q := thumbnailQuery{
		Width:   parseIntDefault(width, defaults.DefaultWidth, "width", fields),
		Height:  parseIntDefault(height, defaults.DefaultHeight, "height", fields),
		Quality: parseIntDefault(quality, defaults.DefaultQuality, "quality", fields),
	}
	if err := h.validator.Struct(q); err != nil {
		validationErrorsToMap(err, fields)
	}
	if defaults.MaxWidth > 0 && q.Width > defaults.MaxWidth {
		fields["width"] = fmt.Sprintf("must not exceed %d", defaults.MaxWidth)
	}
	if defaults.MaxHeight > 0 && q.Height > defaults.MaxHeight {
		fields["height"] = fmt.Sprintf("must not exceed %d", defaults.MaxHeight)
	}

	f := entities.Fit(strings.ToLower(fit))
	if fit == "" {
		f = entities.Fit(defaults.DefaultFit)
	}
	if !f.Valid() {
		fields["fit"] = "must be one of: cover contain fill"
	}

	return entities.ThumbnailParams{
		Key:     key,
		Width:   q.Width,
		Height:  q.Height,
		Quality: q.Quality,
		Fit:     f,
	}, fields
}

// ListVariants serves GET /api/thumbnail/variants.
func (h *Handler) ListVariants(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSONError(w, msgMissingKey, http.StatusBadRequest)
		return
	}

	variants, err := h.useCase.ListVariants(r.Context(), key)
	if err != nil {
		if errors.Is(err, entities.ErrRegistryDisabled) {
			writeJSONError(w, "Variant registry disabled", http.StatusServiceUnavailable)
			return
		}
		h.internalError(w, r, "list variants failed", err, zap.String("key", key))
		return
	}

	writeJSON(w, variants, http.StatusOK)
}

// UploadImage serves POST /api/images.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	maxMultipartMem := h.cfg.Upload.MaxMultipartMemoryMB
	if err := r.ParseMultipartForm(maxMultipartMem << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeJSONError(w, `missing image file: form field key should be "image"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file", http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	params := UploadImageParams{
		Folder: r.FormValue("folder"),
	}
	if params.Folder == "" {
		params.Folder = "recipes"
	}

	if err := h.validator.Struct(params); err != nil {
		writeValidationError(w, "Invalid upload parameters", validationErrorsToMap(err, map[string]string{}))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.internalError(w, r, "read upload failed", err)
		return
	}

	mime := mimetype.Detect(data)
	ext := mime.Extension()
	fileType := mime.String()

	if err := validateMimeType(fileType); err != nil {
		writeJSONError(w, fmt.Sprintf("unsupported file type: %s", fileType), http.StatusBadRequest)
		return
	}

	img, err := h.useCase.UploadImage(r.Context(), data, ext, fileType, params)
	if err != nil {
		switch {
		case errors.Is(err, entities.ErrInvalidImage):
			writeJSONError(w, "image could not be decoded", http.StatusBadRequest)
		case errors.Is(err, r2.ErrQueueFull), errors.Is(err, entities.ErrUploadsUnavailable):
			w.Header().Set("Retry-After", "5")
			writeJSONError(w, "upload queue is busy, retry later", http.StatusServiceUnavailable)
		default:
			h.internalError(w, r, "upload failed", err)
		}
		return
	}

	writeJSON(w, img, http.StatusAccepted)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// internalError logs err with the request id, reports it and answers with
// the generic 500 body.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	logging.L().Error(msg, fields...)

	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}

	writeJSONError(w, msgProcessFailed, http.StatusInternalServerError)
}
