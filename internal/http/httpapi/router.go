package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	generate := middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/batch", func(r chi.Router) {
		r.With(generate).Post("/", app.StartBatch)
		r.Get("/", app.GetBatch)
		r.Get("/events", app.BatchEvents)
		r.Get("/archive", app.ArchiveBatch)
	})

	r.Route("/v1/items/{id}", func(r chi.Router) {
		r.With(generate).Post("/regenerate", app.RegenerateItem)
		r.With(generate).Post("/video", app.GenerateItemVideo)
		r.Get("/photo", app.ItemPhoto)
		r.Get("/video", app.ItemVideo)
	})

	r.With(generate).Post("/v1/describe", app.Describe)

	r.Route("/v1/history", func(r chi.Router) {
		r.Get("/", app.ListHistory)
		r.Delete("/{id}", app.RemoveHistoryEntry)
		r.Delete("/", app.ClearHistory)
	})

	return r
}
