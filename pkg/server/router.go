package server

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the API routes. Link endpoints sit outside RequireUser's
// JSON error shape only in that the callback is hit by the provider redirect,
// which still carries no user header; the state parameter identifies the
// user there instead.
func NewRouter(h *Handlers, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(Recoverer(logger))
	r.Use(RequestLogger(logger))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Get("/whoop/{resource}", h.Records)
			r.Get("/whoop/profile", h.Profile)
			r.Get("/whoop/health", h.Health)

			r.Get("/coach", h.Summary)
			r.Post("/coach/week", h.Week)
			r.Post("/coach/chat", h.Chat)

			r.Get("/auth/whoop/link", h.Link)
		})

		r.Get("/auth/whoop/callback", h.LinkCallback)
	})

	return r
}
