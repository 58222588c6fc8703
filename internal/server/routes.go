package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Inbound platform events. POST feeds the dispatch buffer; GET streams
	// per-conversation events over SSE.
	r.Post("/event", s.ingestEvent)
	r.Get("/event", s.conversationEvents)

	// Session inspection
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)

		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.clearSession)
			r.Get("/history", s.getHistory)
			r.Post("/expire-check", s.checkExpiry)
		})
	})

	// Event streaming (SSE)
	r.Get("/global/event", s.globalEvents)

	// Configuration
	r.Get("/config", s.getConfig)

	// Liveness and buffer stats
	r.Get("/health", s.health)
}
