// Package dispatch implements the two-tier inbound buffer that serializes
// conversation processing: a per-key debounce window coalesces rapid-fire
// messages before dispatch, and a capped busy-queue absorbs messages that
// arrive while a dispatch for the same key is in flight. At most one
// processor call runs per conversation key at any time.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/parley-ai/parley/internal/event"
	"github.com/parley-ai/parley/internal/logging"
	"github.com/parley-ai/parley/pkg/types"
)

// Default tuning. Debounce defaults apply at the config layer; the buffer
// itself treats zero debounce as "dispatch immediately".
const (
	DefaultInboundDebounce = 1000 * time.Millisecond
	DefaultQueueDebounce   = 500 * time.Millisecond
	DefaultQueueCap        = 5
)

// Processor handles one (possibly merged) entry for a conversation key. The
// buffer guarantees no two calls for the same key run concurrently. Errors
// and panics are logged and swallowed at the dispatch boundary; retry, if
// wanted, is the processor's own business.
type Processor func(ctx context.Context, conversationKey string, payload types.Payload) error

// Options tunes a Buffer.
type Options struct {
	// InboundDebounce is the coalescing window for non-media entries. Each
	// arrival resets the countdown. Zero dispatches immediately.
	InboundDebounce time.Duration
	// QueueDebounce delays draining the busy-queue after a dispatch settles.
	// Zero drains on the next scheduler turn.
	QueueDebounce time.Duration
	// QueueCap bounds the per-key busy-queue; overflow drops the oldest
	// queued entry. Non-positive values use DefaultQueueCap.
	QueueCap int
	// DedupCacheSize bounds the seen-message set. Non-positive values use
	// DefaultDedupCacheSize.
	DedupCacheSize int
	// BusyReleaseTimeout force-clears a busy marker whose processor has not
	// settled, orphaning the still-running call. Zero disables the watchdog.
	BusyReleaseTimeout time.Duration
}

// pendingBatch accumulates one key's debounce window.
type pendingBatch struct {
	entries []*types.Entry
	timer   *time.Timer
}

// Buffer is the two-tier dispatch buffer. All state is owned by the one
// instance and guarded by a single mutex; timer callbacks and processor
// completions re-enter through that lock, so producers may call Enqueue from
// any goroutine.
type Buffer struct {
	processor Processor
	opts      Options
	log       zerolog.Logger

	mu           sync.Mutex
	disposed     bool
	seen         *DedupeCache
	pending      map[string]*pendingBatch
	queues       map[string][]*types.Entry
	inflight     map[string]uint64
	settleTimers map[string]*time.Timer
	watchdogs    map[string]*time.Timer
	tokens       uint64
}

// Stats is a point-in-time snapshot of buffer occupancy.
type Stats struct {
	PendingKeys   int `json:"pendingKeys"`
	QueuedKeys    int `json:"queuedKeys"`
	QueuedEntries int `json:"queuedEntries"`
	InFlight      int `json:"inFlight"`
}

// New creates a dispatch buffer that hands merged entries to processor.
func New(processor Processor, opts Options) *Buffer {
	if opts.QueueCap <= 0 {
		opts.QueueCap = DefaultQueueCap
	}
	if opts.DedupCacheSize <= 0 {
		opts.DedupCacheSize = DefaultDedupCacheSize
	}
	return &Buffer{
		processor:    processor,
		opts:         opts,
		log:          logging.Component("dispatch"),
		seen:         NewDedupeCache(opts.DedupCacheSize),
		pending:      make(map[string]*pendingBatch),
		queues:       make(map[string][]*types.Entry),
		inflight:     make(map[string]uint64),
		settleTimers: make(map[string]*time.Timer),
		watchdogs:    make(map[string]*time.Timer),
	}
}

// Enqueue routes one inbound entry. Fire-and-forget: it never blocks on the
// processor and never panics. Duplicate message IDs are dropped, busy keys
// queue, media entries and zero debounce dispatch immediately, everything
// else joins the key's debounce batch.
func (b *Buffer) Enqueue(entry types.Entry) {
	if entry.EnqueuedAt == 0 {
		entry.EnqueuedAt = time.Now().UnixMilli()
	}
	key := entry.ConversationKey
	if key == "" {
		b.log.Warn().Int64("messageId", entry.MessageID).Msg("dropping entry without conversation key")
		return
	}

	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}

	if entry.MessageID != 0 && b.seen.IsDuplicate(dedupIdentity(key, entry.MessageID)) {
		b.mu.Unlock()
		b.log.Debug().Str("key", key).Int64("messageId", entry.MessageID).Msg("duplicate message dropped")
		event.Publish(event.Event{
			Type: event.EntryDeduplicated,
			Data: event.EntryDeduplicatedData{ConversationKey: key, MessageID: entry.MessageID},
		})
		return
	}

	if _, busy := b.inflight[key]; busy {
		dropped := b.queueBusyLocked(&entry)
		b.mu.Unlock()
		b.announceDrop(key, dropped)
		event.Publish(event.Event{
			Type: event.EntryEnqueued,
			Data: event.EntryEnqueuedData{ConversationKey: key, MessageID: entry.MessageID, Queued: true},
		})
		return
	}

	if entry.IsMedia || b.opts.InboundDebounce <= 0 {
		token := b.claimLocked(key)
		b.mu.Unlock()
		event.Publish(event.Event{
			Type: event.EntryEnqueued,
			Data: event.EntryEnqueuedData{ConversationKey: key, MessageID: entry.MessageID},
		})
		go b.dispatch(key, entry, 1, token)
		return
	}

	batch, ok := b.pending[key]
	if !ok {
		batch = &pendingBatch{}
		b.pending[key] = batch
	}
	batch.entries = append(batch.entries, &entry)
	if batch.timer != nil {
		batch.timer.Stop()
	}
	batch.timer = time.AfterFunc(b.opts.InboundDebounce, func() { b.flushPending(key) })
	b.mu.Unlock()

	event.Publish(event.Event{
		Type: event.EntryEnqueued,
		Data: event.EntryEnqueuedData{ConversationKey: key, MessageID: entry.MessageID},
	})
}

// Dispose cancels all pending timers and drops all buffered state.
// Idempotent. In-flight processor calls are not cancelled; their completions
// find the buffer disposed and stop there.
func (b *Buffer) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	for _, batch := range b.pending {
		if batch.timer != nil {
			batch.timer.Stop()
		}
	}
	for _, t := range b.settleTimers {
		t.Stop()
	}
	for _, t := range b.watchdogs {
		t.Stop()
	}
	b.pending = make(map[string]*pendingBatch)
	b.queues = make(map[string][]*types.Entry)
	b.inflight = make(map[string]uint64)
	b.settleTimers = make(map[string]*time.Timer)
	b.watchdogs = make(map[string]*time.Timer)
	b.mu.Unlock()

	b.log.Debug().Msg("dispatch buffer disposed")
}

// Stats snapshots current buffer occupancy.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Stats{
		PendingKeys: len(b.pending),
		QueuedKeys:  len(b.queues),
		InFlight:    len(b.inflight),
	}
	for _, q := range b.queues {
		st.QueuedEntries += len(q)
	}
	return st
}

// queueBusyLocked appends an entry to the key's busy-queue, enforcing the
// cap. Returns the dropped oldest entry, if the cap forced one out.
func (b *Buffer) queueBusyLocked(entry *types.Entry) *types.Entry {
	key := entry.ConversationKey
	queue := append(b.queues[key], entry)
	var dropped *types.Entry
	if len(queue) > b.opts.QueueCap {
		dropped = queue[0]
		queue = queue[1:]
	}
	b.queues[key] = queue
	return dropped
}

func (b *Buffer) announceDrop(key string, dropped *types.Entry) {
	if dropped == nil {
		return
	}
	b.log.Warn().
		Str("key", key).
		Int64("messageId", dropped.MessageID).
		Int("cap", b.opts.QueueCap).
		Msg("busy-queue full, dropped oldest entry")
	event.Publish(event.Event{
		Type: event.EntryDropped,
		Data: event.EntryDroppedData{ConversationKey: key, MessageID: dropped.MessageID, QueueCap: b.opts.QueueCap},
	})
}

// claimLocked marks the key busy and returns the claim token. Tokens tie a
// dispatch to its marker so a stale settle (after a watchdog force-release)
// cannot clear a successor's claim.
func (b *Buffer) claimLocked(key string) uint64 {
	b.tokens++
	token := b.tokens
	b.inflight[key] = token
	if b.opts.BusyReleaseTimeout > 0 {
		if t, ok := b.watchdogs[key]; ok {
			t.Stop()
		}
		b.watchdogs[key] = time.AfterFunc(b.opts.BusyReleaseTimeout, func() { b.forceRelease(key, token) })
	}
	return token
}

// flushPending fires when a key's debounce window closes: merge the batch and
// dispatch it, or reroute it to the busy-queue if a media bypass claimed the
// key mid-window. A reset timer that had already fired drains the whole
// batch; the replacement timer then finds nothing and no-ops.
func (b *Buffer) flushPending(key string) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	batch, ok := b.pending[key]
	if !ok || len(batch.entries) == 0 {
		delete(b.pending, key)
		b.mu.Unlock()
		return
	}
	delete(b.pending, key)
	merged := mergeFlat(batch.entries)

	if _, busy := b.inflight[key]; busy {
		dropped := b.queueBusyLocked(&merged)
		b.mu.Unlock()
		b.announceDrop(key, dropped)
		return
	}

	token := b.claimLocked(key)
	b.mu.Unlock()
	b.dispatch(key, merged, len(batch.entries), token)
}

// dispatch runs the processor for one merged entry. Every dispatch path goes
// through here: errors and panics are caught and logged, and the busy marker
// clears in the deferred settle no matter how the processor exits.
func (b *Buffer) dispatch(key string, entry types.Entry, mergedCount int, token uint64) {
	defer b.settle(key, token)

	dispatchID := ulid.Make().String()
	start := time.Now()
	b.log.Debug().
		Str("key", key).
		Str("dispatch", dispatchID).
		Int("merged", mergedCount).
		Msg("dispatch started")
	event.Publish(event.Event{
		Type: event.DispatchStarted,
		Data: event.DispatchStartedData{ConversationKey: key, Merged: mergedCount},
	})

	err := b.runProcessor(key, entry)
	duration := time.Since(start)
	if err != nil {
		b.log.Error().
			Str("key", key).
			Str("dispatch", dispatchID).
			Dur("duration", duration).
			Err(err).
			Msg("dispatch failed")
	} else {
		b.log.Debug().
			Str("key", key).
			Str("dispatch", dispatchID).
			Dur("duration", duration).
			Msg("dispatch finished")
	}

	finished := event.DispatchFinishedData{
		ConversationKey: key,
		OK:              err == nil,
		DurationMs:      duration.Milliseconds(),
	}
	if err != nil {
		finished.Error = err.Error()
	}
	event.Publish(event.Event{Type: event.DispatchFinished, Data: finished})
}

func (b *Buffer) runProcessor(key string, entry types.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return b.processor(context.Background(), key, entry.Payload)
}

// settle clears the dispatch's busy marker and, if entries queued up while it
// ran, schedules a drain. Stale tokens (force-released by the watchdog) are
// ignored so a successor's claim survives.
func (b *Buffer) settle(key string, token uint64) {
	b.mu.Lock()
	if current, ok := b.inflight[key]; !ok || current != token {
		b.mu.Unlock()
		return
	}
	delete(b.inflight, key)
	if t, ok := b.watchdogs[key]; ok {
		t.Stop()
		delete(b.watchdogs, key)
	}
	b.scheduleDrainLocked(key)
	b.mu.Unlock()
}

// scheduleDrainLocked arms the drain timer for a key with queued entries.
// Draining always goes back through the scheduler, even at zero debounce, so
// a busy key under sustained traffic never grows the call stack.
func (b *Buffer) scheduleDrainLocked(key string) {
	if b.disposed || len(b.queues[key]) == 0 {
		return
	}
	if t, ok := b.settleTimers[key]; ok {
		t.Stop()
	}
	b.settleTimers[key] = time.AfterFunc(b.opts.QueueDebounce, func() { b.drainQueue(key) })
}

// drainQueue merges and dispatches everything queued for a key. If a direct
// enqueue claimed the key first, the queue stays put; that dispatch's settle
// reschedules the drain.
func (b *Buffer) drainQueue(key string) {
	b.mu.Lock()
	delete(b.settleTimers, key)
	if b.disposed {
		b.mu.Unlock()
		return
	}
	if _, busy := b.inflight[key]; busy {
		b.mu.Unlock()
		return
	}
	entries := b.queues[key]
	if len(entries) == 0 {
		b.mu.Unlock()
		return
	}
	delete(b.queues, key)
	token := b.claimLocked(key)
	b.mu.Unlock()

	b.log.Debug().Str("key", key).Int("queued", len(entries)).Msg("draining busy-queue")
	b.dispatch(key, mergeQueued(entries), len(entries), token)
}

// forceRelease is the busy-release watchdog: it abandons a processor call
// that outlived the configured timeout so the key's queue is not starved
// forever. The orphaned call keeps running; its eventual settle is a no-op.
func (b *Buffer) forceRelease(key string, token uint64) {
	b.mu.Lock()
	delete(b.watchdogs, key)
	if b.disposed {
		b.mu.Unlock()
		return
	}
	if current, ok := b.inflight[key]; !ok || current != token {
		b.mu.Unlock()
		return
	}
	delete(b.inflight, key)
	queued := len(b.queues[key])
	b.scheduleDrainLocked(key)
	b.mu.Unlock()

	b.log.Warn().
		Str("key", key).
		Int("queued", queued).
		Dur("timeout", b.opts.BusyReleaseTimeout).
		Msg("busy marker force-released, processor still running")
}
