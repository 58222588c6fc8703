/*
Package event carries the engine's lifecycle notifications: buffer
admissions, dispatch outcomes, session changes, group activity, and
configuration reloads. Publishers and observers stay decoupled; the
dispatch buffer, the session store, and the HTTP gateway all talk
through this package without importing each other.

# Two delivery paths

Every published event fans out twice:

  - Typed path: subscribers registered with Subscribe or SubscribeAll
    receive the Event value directly, payload types intact.
  - Wire path: the event is JSON-encoded and mirrored onto a watermill
    gochannel topic (Topic). Stream consumers read raw messages whose
    metadata carries the event type and, for conversation-scoped
    events, the conversation key.

The typed path suits in-process reactions such as applying a reloaded
configuration. The wire path suits transport consumers such as the SSE
endpoints, which forward payload bytes as-is and filter on metadata
alone.

# Event types

Buffer events:

  - entry.enqueued: inbound entry accepted into a debounce window or busy queue
  - entry.deduplicated: inbound entry discarded as a duplicate delivery
  - entry.dropped: oldest waiting entry discarded from a full busy queue
  - dispatch.started: merged payload handed to the dispatch handler
  - dispatch.finished: dispatch handler returned (success or failure)

Session events:

  - session.appended: turns appended to a conversation transcript
  - session.compacted: transcript rewritten down to its retention tail
  - session.cleared: conversation state removed
  - session.expired: expired session flushed and reset before reuse

Engine-wide events:

  - group.activity: participant marked active, opening the reply window
  - config.updated: configuration file changed on disk and was reloaded

Payload structs that belong to a single conversation implement Keyed;
their key is copied into wire metadata under MetaKey. group.activity
and config.updated are engine-wide and carry no key.

# Publishing

	event.Publish(event.Event{
		Type: event.DispatchStarted,
		Data: event.DispatchStartedData{ConversationKey: key, Merged: merged},
	})

Publish delivers asynchronously, one goroutine per subscriber.
PublishSync runs typed-path subscribers inline before returning; the
wire mirror stays asynchronous either way.

# Subscribing

	unsubscribe := event.Subscribe(event.ConfigUpdated, func(e event.Event) {
		reload()
	})
	defer unsubscribe()

Subscribers on the typed path must not block: use buffered channels
with a non-blocking send, and never publish from within a subscriber.

# Streaming

	msgs, err := event.Stream(ctx)
	if err != nil { ... }
	for msg := range msgs {
		msg.Ack()
		if msg.Metadata.Get(event.MetaKey) != wantKey {
			continue
		}
		forward(msg.Payload)
	}

Stream subscriptions end when ctx is cancelled. Every message must be
Acked or delivery to that consumer stalls.

# Testing

Reset replaces the global bus, dropping all subscriptions. Tests that
touch package-level functions should call it in cleanup. For full
isolation, NewBus returns an independent bus with the same API.
*/
package event
