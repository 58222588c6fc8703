package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parley-ai/parley/pkg/types"
)

// listSessions handles GET /session
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	metas := s.store.ListMetas(r.Context())

	// Ensure we return an empty array [] instead of null
	if metas == nil {
		metas = []types.SessionMeta{}
	}

	writeJSON(w, http.StatusOK, metas)
}

// getSession handles GET /session/{key}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	meta, ok := s.store.Meta(r.Context(), key)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, meta)
}

// getHistory handles GET /session/{key}/history
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	turns := s.store.History(r.Context(), key, limit)
	if turns == nil {
		turns = []types.Turn{}
	}

	writeJSON(w, http.StatusOK, turns)
}

// clearSession handles DELETE /session/{key}
func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := s.store.Clear(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeSuccess(w)
}

// ExpireCheckResponse is the body returned by the expiry probe.
type ExpireCheckResponse struct {
	Expired bool   `json:"expired"`
	Reason  string `json:"reason,omitempty"` // "daily" | "idle"
}

// checkExpiry handles POST /session/{key}/expire-check. The probe is
// read-only: an expired session stays on disk until its next dispatch.
func (s *Server) checkExpiry(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	expired, reason := s.store.CheckExpiry(r.Context(), key)
	writeJSON(w, http.StatusOK, ExpireCheckResponse{
		Expired: expired,
		Reason:  reason,
	})
}
