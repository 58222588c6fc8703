package server

import (
	"net/http"

	"github.com/parley-ai/parley/internal/dispatch"
)

// HealthResponse reports liveness plus a snapshot of buffer state. Instance
// changes on every restart, so watchers can tell a restart from a blip.
type HealthResponse struct {
	Status   string         `json:"status"`
	Instance string         `json:"instance"`
	Buffer   dispatch.Stats `json:"buffer"`
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Instance: s.instance,
		Buffer:   s.buffer.Stats(),
	})
}

// getConfig handles GET /config
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configSnapshot()
	if cfg == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No configuration loaded")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
