package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// routes mounts the probes and metrics, the chat endpoint when a session
// handler is published, and the admin API when auth is configured.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	r.Get("/health", g.handleHealth())
	r.Get("/ready", g.handleReady())
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}

	// The model API key travels in each batch; the socket has no auth.
	if g.chat != nil {
		r.Handle(g.config.ChatPath, g.chat)
	}

	if !g.config.Auth.IsConfigured() {
		return r
	}
	auth := &authenticator{cfg: g.config.Auth, audit: g.audit, limiter: g.rateLimiter}
	r.Group(func(r chi.Router) {
		r.Use(auth.middleware)
		r.Get("/status", g.handleStatus())
		r.Route("/api", func(r chi.Router) {
			r.Get("/modules", g.handleListModules())
			r.Get("/sessions", g.handleListSessions())
			r.Delete("/sessions/{id}", g.handleDeleteSession())
			r.Get("/runs", g.handleListRuns())
			r.Post("/jobs/{name}/trigger", g.handleTriggerJob())
		})
	})
	return r
}
