package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/sodatrack/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/account", h.EnsureAccount)
		r.Put("/account/dispenser", h.SetDispenser)

		r.Route("/siphons", func(r chi.Router) {
			r.Get("/", h.ListSiphons)
			r.Post("/", h.ProvisionSiphon)
			r.Get("/active", h.ActiveSiphon)
			r.Post("/{id}/activate", h.ActivateSiphon)
			r.Post("/{id}/toggle", h.ToggleSiphon)
			r.Post("/{id}/recharge", h.RechargeSiphon)
		})

		r.Post("/usage", h.RegisterUsage)

		r.Post("/prompts", h.BeginPrompt)
		r.Post("/prompts/resolve", h.ResolvePrompt)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
