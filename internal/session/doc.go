// Package session provides conversation identity and lifecycle management
// for the parley engine.
//
// This package owns everything about a conversation except its processing:
// how raw platform identifiers become a stable conversation key, how
// transcripts are persisted and bounded, when a session expires, and whether
// an unprompted group message should activate the engine at all.
//
// # Architecture Overview
//
// The package is built around a few cooperating pieces:
//
//   - Key: value identity of a conversation, derived from an EventContext
//   - Store: transcript persistence, session metadata, and reply windows
//   - ResetPolicy: pure expiry predicates (daily reset hour, idle timeout)
//   - GroupSettings: activation mode, handle, and name patterns for groups
//
// # Conversation Keys
//
// Keys are values, not references: two keys address the same conversation iff
// all fields match. Private chats key by the sending subject; group and
// channel chats key by the chat, optionally split per forum topic:
//
//	key := store.DeriveKey(ev).String()
//	// "owner:direct:42" or "owner:group:-100:topic:7"
//
// The serialized form is forward-stable (the same logical conversation always
// serializes identically) and is the handle every other Store method takes:
// transcripts, metadata, and expiry all address sessions by this string.
//
// # Transcripts
//
// Each conversation has one JSON-lines transcript file. Appends go through
// AppendMessages, which updates the session metadata and evaluates
// compaction: once the file exceeds twice maxHistory lines it is rewritten
// keeping only the last maxHistory lines, preserving relative order.
//
//	store.AppendMessages(ctx, key, turns, 100)
//	recent := store.History(ctx, key, 50)
//	all := store.FullHistory(ctx, key)
//
// Reads never fail: a missing transcript yields an empty history and corrupt
// lines are skipped with a warning, so one bad write cannot take a
// conversation down.
//
// # Expiry
//
// Expiry detection and the expiry action are deliberately decoupled.
// IsExpired is read-only; callers that want to preserve history flush it
// somewhere durable before calling Clear:
//
//	if store.IsExpired(ctx, key) {
//	    turns := store.FullHistory(ctx, key)
//	    // hand turns to long-term memory, then:
//	    store.Clear(ctx, key)
//	}
//
// Two policies exist, evaluated as independent ORs: a daily reset hour (the
// session expires once the local clock passes the configured hour) and an
// idle timeout in minutes.
//
// # Group Activation
//
// In group chats the engine only responds when addressed. ShouldRespondInGroup
// evaluates, in precedence order: always-on activation, a reply to the
// engine's own message, a handle mention, a configured name pattern
// (case-insensitive, word-boundary), and finally an open reply window for the
// sender. MarkActive opens that window; its persistence is debounced so group
// bursts batch into one disk write.
//
//	if store.ShouldRespondInGroup(ev) {
//	    text := store.StripMention(ev.Text)
//	    store.MarkActive(ev.ChatID, ev.SubjectID)
//	    // enqueue for processing
//	}
//
// # Persisted State
//
// All state lives under the engine data directory and is stable across
// restarts:
//
//	transcripts/{key}.jsonl  -> one JSON turn per line
//	sessions/index.json      -> serialized key -> SessionMeta
//	sessions/active.json     -> "chatId:subjectId" -> last-active unix ms
//
// # Events
//
// The store publishes session.appended, session.compacted, session.cleared,
// and group.activity events on the engine bus as it works, so observers (SSE
// clients, logging) can follow the lifecycle without polling.
//
// # Thread Safety
//
// Store methods are safe for concurrent use. All map mutation happens under
// one mutex; transcript appends additionally rely on the storage layer's
// per-file locking. Per-key transcript ordering holds because the dispatch
// layer never runs two processors for the same key concurrently.
package session
