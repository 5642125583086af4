package devserver

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/penshort/deeplink/internal/middleware"
)

// RouterConfig holds middleware settings.
type RouterConfig struct {
	Keys          middleware.KeySet
	IsDevelopment bool
	MaxBodySize   int64
}

// NewRouter wires the handler behind the standard middleware chain.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(cfg.IsDevelopment))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(cfg.Keys, logger))
		r.Use(middleware.MaxBodySize(cfg.MaxBodySize))

		r.Post("/verify", h.Verify)
		r.Post("/links", h.CreateLink)
		r.Get("/links/{code}", h.GetLink)
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
