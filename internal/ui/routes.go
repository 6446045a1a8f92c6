package ui

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"duck-explore/internal/ui/assets"
)

// MountRoutes registers the UI under the router it is given, which the app
// mounts at /ui.
func MountRoutes(r chi.Router, h *Handler) {
	staticFS, err := fs.Sub(assets.StaticFS(), "static")
	if err == nil {
		r.Handle("/static/*", http.StripPrefix("/ui/static/", http.FileServer(http.FS(staticFS))))
	}

	r.Group(func(r chi.Router) {
		r.Use(h.EnsureCSRFToken)
		r.Use(h.RequireCSRF)
		r.Get("/", exploreRedirect)
		r.Get("/explore", h.ExplorePage)
		r.Get("/explore/status", h.ExploreStatus)
		r.Post("/explore/submit", h.ExploreSubmit)
		r.Get("/jobs/{jobID}", h.JobDetail)
		r.Get("/projects/{projectID}/jobs/{jobID}", h.JobDetail)
	})
}
