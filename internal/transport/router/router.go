package router

import (
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/isntfunny/kitchenpace-sub002/internal/logging"
	"github.com/isntfunny/kitchenpace-sub002/internal/metrics"
	"github.com/isntfunny/kitchenpace-sub002/internal/transport/handler"
)

func NewRouter(h *handler.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.Middleware,
		metrics.Middleware,
		sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle,
		middleware.Recoverer,
		middleware.Timeout(30*time.Second),
	)

	r.Get("/healthz", h.Healthz)
	r.Method("GET", "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/thumbnail", h.GetThumbnail)
		r.Get("/thumbnail/variants", h.ListVariants)
		r.Post("/images", h.UploadImage)
	})

	return r
}
