package events

import (
	"sync"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/pkg/logging"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 32

// Bus fans events out to subscribers.
//
// Channel subscribers may miss events when they fall behind. Handlers
// registered with Handle see every event, in publish order per publisher.
type Bus struct {
	mu       sync.RWMutex
	subs     map[int]chan api.Event
	handlers map[int]func(api.Event)
	nextID   int
	closed   bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:     make(map[int]chan api.Event),
		handlers: make(map[int]func(api.Event)),
	}
}

// Handle registers fn to be called synchronously from Publish for every
// event. fn runs without the bus lock held, so it may publish. The returned
// function removes the handler.
func (b *Bus) Handle(fn func(api.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	b.handlers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Subscribe returns a channel of future events and a function that ends
// the subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan api.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan api.Event, DefaultBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish implements api.EventSink. It blocks only for as long as the
// registered handlers take.
func (b *Bus) Publish(e api.Event) {
	b.mu.RLock()
	handlers := make([]func(api.Event), 0, len(b.handlers))
	for _, fn := range b.handlers {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			logging.Warn("Events", "Subscriber %d is not keeping up, dropped %s event", id, e.Type)
		}
	}
}

// Close closes every subscription. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	clear(b.handlers)
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

var _ api.EventSink = (*Bus)(nil)
