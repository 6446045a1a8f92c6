package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// MountRoutes registers the /v1 API on r. allowedOrigins configures CORS.
func MountRoutes(r chi.Router, h *Handler, allowedOrigins []string) {
	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"Location", "X-Request-ID"},
			MaxAge:         300,
		}))

		r.Post("/query-jobs", h.SubmitQueryJob)
		r.Get("/query-jobs", h.ListQueryJobs)
		r.Get("/query-jobs/{jobID}", h.GetQueryJob)
		r.Post("/query-jobs/{jobID}/cancel", h.CancelQueryJob)
		r.Delete("/query-jobs/{jobID}", h.DeleteQueryJob)
		r.Get("/explore/status", h.ExploreStatus)
	})
}
