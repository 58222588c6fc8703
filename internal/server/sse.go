package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/parley-ai/parley/internal/event"
	"github.com/parley-ai/parley/internal/logging"
)

// heartbeatInterval paces SSE keep-alive comments.
const heartbeatInterval = 30 * time.Second

// streamBuffer bounds per-client forwarding. A stalled client drops
// events instead of blocking the bus.
const streamBuffer = 16

// sseWriter emits server-sent events on an HTTP response.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// begin sends the SSE response headers and opens the stream. Fails when
// the underlying writer cannot flush incrementally.
func (s *sseWriter) begin() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering

	s.w.WriteHeader(http.StatusOK)
	return s.rc.Flush()
}

// writeRaw emits one event with an already-encoded payload.
func (s *sseWriter) writeRaw(name string, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// writeEvent encodes v as JSON and emits it.
func (s *sseWriter) writeEvent(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeRaw(name, data)
}

func (s *sseWriter) writeHeartbeat() error {
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// globalEvents streams every engine event to the client. Delivery rides
// the typed bus path so the payload keeps its concrete shape.
func (srv *Server) globalEvents(w http.ResponseWriter, r *http.Request) {
	sse := newSSEWriter(w)
	if err := sse.begin(); err != nil {
		logging.Warn().Err(err).Msg("SSE stream rejected: response not flushable")
		return
	}

	events := make(chan event.Event, streamBuffer)
	unsub := event.SubscribeAll(func(e event.Event) {
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("eventType", string(e.Type)).
				Msg("SSE global event dropped: client too slow")
		}
	})
	defer unsub()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent("message", e); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.writeHeartbeat(); err != nil {
				return
			}
		}
	}
}

// conversationEvents streams events for one conversation key. Delivery
// rides the bus wire path: messages arrive pre-encoded and the key
// filter reads metadata only.
func (srv *Server) conversationEvents(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("conversationKey")
	if key == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "conversationKey required")
		return
	}

	msgs, err := event.Stream(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "event stream unavailable")
		return
	}

	sse := newSSEWriter(w)
	if err := sse.begin(); err != nil {
		logging.Warn().Err(err).Msg("SSE stream rejected: response not flushable")
		return
	}

	payloads := make(chan []byte, streamBuffer)
	go func() {
		defer close(payloads)
		for msg := range msgs {
			msg.Ack()
			if msg.Metadata.Get(event.MetaKey) != key {
				continue
			}
			select {
			case payloads <- msg.Payload:
			default:
				logging.Warn().
					Str("conversationKey", key).
					Msg("SSE conversation event dropped: client too slow")
			}
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case p, open := <-payloads:
			if !open {
				return
			}
			if err := sse.writeRaw("message", p); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.writeHeartbeat(); err != nil {
				return
			}
		}
	}
}
