package server

import (
	"encoding/json"
	"net/http"

	"github.com/parley-ai/parley/pkg/types"
)

// IngestRequest is the body for POST /event: one inbound platform event as
// the adapter saw it, plus any already-resolved attachments.
type IngestRequest struct {
	types.EventContext
	Images []string `json:"images,omitempty"`
	// SessionText overrides Text for transcript persistence when the raw
	// text is not safe to persist as-is.
	SessionText string `json:"sessionText,omitempty"`
}

// IngestResponse acknowledges an inbound event. Accepted false means group
// gating decided the engine is not being addressed; the event is dropped
// without entering the buffer.
type IngestResponse struct {
	Accepted        bool   `json:"accepted"`
	ConversationKey string `json:"conversationKey"`
	Reason          string `json:"reason,omitempty"`
}

// ingestEvent handles POST /event
func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if req.ChatID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "chatId is required")
		return
	}
	if req.Text == "" && len(req.Images) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text or images required")
		return
	}

	key := s.store.DeriveKey(req.EventContext).String()

	text := req.Text
	if req.EventContext.IsGroup() {
		if !s.store.ShouldRespondInGroup(req.EventContext) {
			writeJSON(w, http.StatusOK, IngestResponse{
				Accepted:        false,
				ConversationKey: key,
				Reason:          "not-addressed",
			})
			return
		}
		text = s.store.StripMention(text)
		// The engine is engaging with this participant; open the reply
		// window so their follow-ups flow without a fresh mention.
		s.store.MarkActive(req.ChatID, req.SubjectID)
	}

	s.buffer.Enqueue(types.Entry{
		ConversationKey: key,
		Payload: types.Payload{
			Text:        text,
			Images:      req.Images,
			SessionText: req.SessionText,
		},
		MessageID: req.MessageID,
		IsMedia:   len(req.Images) > 0,
	})

	// Enqueue is fire-and-forget; 202 reflects that dispatch happens later.
	writeJSON(w, http.StatusAccepted, IngestResponse{
		Accepted:        true,
		ConversationKey: key,
	})
}
