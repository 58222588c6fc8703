package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventType identifies what happened.
type EventType string

const (
	EntryEnqueued     EventType = "entry.enqueued"
	EntryDeduplicated EventType = "entry.deduplicated"
	EntryDropped      EventType = "entry.dropped"
	DispatchStarted   EventType = "dispatch.started"
	DispatchFinished  EventType = "dispatch.finished"
	SessionAppended   EventType = "session.appended"
	SessionCompacted  EventType = "session.compacted"
	SessionCleared    EventType = "session.cleared"
	SessionExpired    EventType = "session.expired"
	GroupActivity     EventType = "group.activity"
	ConfigUpdated     EventType = "config.updated"
)

// Topic is the watermill topic every event is mirrored to.
const Topic = "engine.events"

// Metadata keys set on wire messages.
const (
	MetaType = "type"
	MetaKey  = "conversationKey"
)

// Event pairs an event type with its payload.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Keyed is implemented by event payloads that belong to a single
// conversation. The key lands in wire message metadata so stream
// consumers can filter without decoding payloads.
type Keyed interface {
	EventKey() string
}

// Subscriber receives events on the typed path.
type Subscriber func(Event)

// Bus is the engine's event hub.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	typed  map[EventType]map[uint64]Subscriber
	all    map[uint64]Subscriber
	closed bool

	wire *gochannel.GoChannel
}

var globalBus = NewBus()

// NewBus returns an independent bus. Most code uses the package-level
// functions, which share one global bus.
func NewBus() *Bus {
	return &Bus{
		typed: make(map[EventType]map[uint64]Subscriber),
		all:   make(map[uint64]Subscriber),
		wire: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NopLogger{},
		),
	}
}

// Subscribe registers fn for one event type on the global bus. The
// returned function removes the subscription.
func Subscribe(eventType EventType, fn Subscriber) func() {
	return globalBus.Subscribe(eventType, fn)
}

func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}
	m := b.typed[eventType]
	if m == nil {
		m = make(map[uint64]Subscriber)
		b.typed[eventType] = m
	}
	id := b.nextID
	b.nextID++
	m[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(m, id)
	}
}

// SubscribeAll registers fn for every event on the global bus.
func SubscribeAll(fn Subscriber) func() {
	return globalBus.SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.all[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// snapshot collects the subscribers an event of type t would reach.
func (b *Bus) snapshot(t EventType) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	subs := make([]Subscriber, 0, len(b.typed[t])+len(b.all))
	for _, fn := range b.typed[t] {
		subs = append(subs, fn)
	}
	for _, fn := range b.all {
		subs = append(subs, fn)
	}
	return subs
}

// Publish delivers the event asynchronously. Each subscriber runs in its
// own goroutine, so a slow subscriber never blocks the publisher.
func Publish(e Event) {
	globalBus.Publish(e)
}

func (b *Bus) Publish(e Event) {
	for _, fn := range b.snapshot(e.Type) {
		go fn(e)
	}
	go b.emit(e)
}

// PublishSync delivers the event to typed-path subscribers before
// returning. The wire mirror stays asynchronous.
func PublishSync(e Event) {
	globalBus.PublishSync(e)
}

func (b *Bus) PublishSync(e Event) {
	for _, fn := range b.snapshot(e.Type) {
		fn(e)
	}
	go b.emit(e)
}

// emit mirrors the event onto the wire topic. Marshal failures drop the
// event; payloads are plain data structs.
func (b *Bus) emit(e Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaType, string(e.Type))
	if k, ok := e.Data.(Keyed); ok {
		msg.Metadata.Set(MetaKey, k.EventKey())
	}
	_ = b.wire.Publish(Topic, msg)
}

// Stream returns wire messages for every event published after the call.
// The subscription ends when ctx is cancelled. Consumers must Ack each
// message or delivery to them stalls.
func Stream(ctx context.Context) (<-chan *message.Message, error) {
	return globalBus.Stream(ctx)
}

func (b *Bus) Stream(ctx context.Context) (<-chan *message.Message, error) {
	return b.wire.Subscribe(ctx, Topic)
}

// Close drops all subscribers and shuts the wire channel. Publishing to a
// closed bus is a no-op.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.typed = make(map[EventType]map[uint64]Subscriber)
	b.all = make(map[uint64]Subscriber)
	b.mu.Unlock()

	return b.wire.Close()
}

// Reset replaces the global bus. Tests use it to isolate subscriptions.
func Reset() {
	old := globalBus
	globalBus = NewBus()
	_ = old.Close()
	// Give in-flight delivery goroutines a moment to drain.
	time.Sleep(10 * time.Millisecond)
}
