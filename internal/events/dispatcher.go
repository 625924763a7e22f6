package events

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned by Publish when the buffer has no room; the event is dropped.
	ErrQueueFull = errors.New("event queue full")
	// ErrDispatcherClosed is returned by Publish after Close.
	ErrDispatcherClosed = errors.New("event dispatcher closed")
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// QueuedDispatcher buffers published events for a background worker.
// Publish never blocks the caller.
type QueuedDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
	queue     chan Event
	closed    bool
}

// NewQueuedDispatcher creates a dispatcher with the given buffer size.
func NewQueuedDispatcher(size int) *QueuedDispatcher {
	if size <= 0 {
		size = 1
	}
	return &QueuedDispatcher{
		listeners: make(map[EventType][]EventHandler),
		queue:     make(chan Event, size),
	}
}

// Publish enqueues the event or drops it if the buffer is full.
func (d *QueuedDispatcher) Publish(_ context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers a handler for the given event type.
func (d *QueuedDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// Events exposes the queue to workers. It is closed by Close.
func (d *QueuedDispatcher) Events() <-chan Event {
	return d.queue
}

// Deliver synchronously invokes handlers for the event. Handler errors are
// collected but never stop the remaining handlers.
func (d *QueuedDispatcher) Deliver(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops accepting events and closes the queue so workers can drain it.
func (d *QueuedDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}
