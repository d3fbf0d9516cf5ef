package engine

import (
	"sync"
	"time"
)

type EventType int

// mask returns the bit for t in a subscriber's type set. Every event type
// fits in 64 bits.
func (t EventType) mask() uint64 { return 1 << uint(t) }

type SubscriberID int

// Event is one fleet state change, fanned out to the persistence,
// messaging and live-stream handlers.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

type handler struct {
	id    SubscriberID
	fn    func(Event)
	types uint64 // 0 matches every type
}

// EventBus delivers events synchronously, in subscription order, on the
// emitting goroutine. The handler list is replaced on every change, so
// Emit reads it without copying and handlers may subscribe or unsubscribe
// from inside a delivery.
type EventBus struct {
	mu       sync.Mutex
	handlers []handler
	nextID   SubscriberID
	logFn    LogFunc
}

// NewEventBus returns a bus that reports handler panics through logFn.
func NewEventBus(logFn LogFunc) *EventBus {
	if logFn == nil {
		logFn = func(string, ...any) {}
	}
	return &EventBus{logFn: logFn}
}

// Subscribe registers fn for every event type.
func (eb *EventBus) Subscribe(fn func(Event)) SubscriberID {
	return eb.add(fn, 0)
}

// SubscribeTypes registers fn for the listed types only.
func (eb *EventBus) SubscribeTypes(fn func(Event), types ...EventType) SubscriberID {
	var m uint64
	for _, t := range types {
		m |= t.mask()
	}
	return eb.add(fn, m)
}

func (eb *EventBus) add(fn func(Event), types uint64) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	next := make([]handler, len(eb.handlers), len(eb.handlers)+1)
	copy(next, eb.handlers)
	eb.handlers = append(next, handler{id: eb.nextID, fn: fn, types: types})
	return eb.nextID
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	next := make([]handler, 0, len(eb.handlers))
	for _, h := range eb.handlers {
		if h.id != id {
			next = append(next, h)
		}
	}
	eb.handlers = next
}

// Emit stamps evt if needed and hands it to every matching handler. A
// panicking handler is logged and skipped.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.Lock()
	handlers := eb.handlers
	eb.mu.Unlock()

	bit := evt.Type.mask()
	for _, h := range handlers {
		if h.types != 0 && h.types&bit == 0 {
			continue
		}
		eb.deliver(h, evt)
	}
}

func (eb *EventBus) deliver(h handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logFn("engine: event handler %d panicked on %s: %v", h.id, evt.Type, r)
		}
	}()
	h.fn(evt)
}
