package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get(s.wsCfg.Path, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/categories", s.handleListCategories)
		r.Get("/sidecars", s.handleListSidecars)

		r.Route("/targets", func(r chi.Router) {
			r.Get("/", s.handleListTargets)
			r.Post("/", s.handleCreateTarget)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTarget)
				r.Put("/", s.handleUpdateTarget)
				r.Delete("/", s.handleDeleteTarget)
				r.Post("/connect", s.handleConnectTarget)
				r.Post("/disconnect", s.handleDisconnectTarget)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Put("/scene", s.handleSetActiveScene)
				r.Get("/elements", s.handleListElements)
				r.Get("/conditions", s.handleListConditions)
				r.Post("/conditions", s.handleCreateCondition)
				r.Post("/flash", s.handleFlash)
				r.Get("/flashes", s.handleListFlashes)
			})
		})

		r.Route("/conditions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetCondition)
			r.Delete("/", s.handleDeleteCondition)
		})
	})

	return r
}
