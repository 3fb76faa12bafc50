package api

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the websocket endpoints, the status/statistics
// endpoints and the static dashboard assets onto one chi router.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", h.Home)
	r.Get("/health", h.Health)
	r.Get("/data/latest", h.Latest)
	r.Get("/data/stats", h.Stats)

	r.Get("/ws", h.CombinedSocket)
	r.Get("/ws-microphone", h.AudioSocket)
	r.Get("/ws-dashboard", h.DashboardSocket)

	fs := http.FileServer(http.Dir(filepath.Clean(h.staticDir)))
	r.Handle("/static/*", http.StripPrefix("/static/", fs))

	return r
}
