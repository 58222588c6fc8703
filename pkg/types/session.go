// Package types provides the core data types shared across the parley engine.
package types

// SessionMeta is the per-conversation bookkeeping record. One exists per
// conversation key, created on first transcript append, mutated on every
// append and compaction, deleted on session clear. Persisted as part of a
// single index file and durable across restarts.
type SessionMeta struct {
	Key             string `json:"key"`
	CreatedAt       int64  `json:"createdAt"`      // unix milliseconds
	LastActivityAt  int64  `json:"lastActivityAt"` // unix milliseconds
	MessageCount    int    `json:"messageCount"`
	CompactionCount int    `json:"compactionCount"`
	// LastFlushCompactionIndex marks the compaction count up to which a
	// caller has already flushed history to long-term memory, so a
	// proactive-flush policy does not re-summarize the same material.
	LastFlushCompactionIndex *int `json:"lastFlushCompactionIndex,omitempty"`
}
