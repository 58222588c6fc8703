// Package server exposes the engine over HTTP.
//
// The gateway is deliberately thin. POST /event is the single write path:
// a platform adapter posts one inbound chat event, the handler derives the
// conversation key, applies group gating, and hands the entry to the
// dispatch buffer. Everything the buffer does afterwards (debounce, dedup,
// busy-queueing, dispatch to the forwarder) is asynchronous; the response
// only acknowledges acceptance.
//
// The read paths are inspection surfaces over the session store:
//
//	GET    /session                     list session metadata
//	GET    /session/{key}               one session's metadata
//	GET    /session/{key}/history       transcript tail (?limit=N)
//	DELETE /session/{key}               clear transcript and metadata
//	POST   /session/{key}/expire-check  read-only expiry probe
//
// Two SSE streams mirror the internal event bus: GET /global/event carries
// every bus event, GET /event?conversationKey=... filters to one
// conversation. Both send heartbeat comments and drop events rather than
// block a slow client.
//
// GET /health reports liveness plus current buffer statistics, and
// GET /config returns the resolved engine configuration.
package server
