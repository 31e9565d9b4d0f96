package stream

import "sync"

// Subscription receives broadcast values on C until it is unsubscribed
type Subscription[T any] struct {
	C  <-chan T
	ch chan T
}

// Hub broadcasts values to every subscriber. A subscriber whose buffer is full misses the value.
type Hub[T any] struct {
	mu   sync.RWMutex
	subs map[*Subscription[T]]struct{}
}

// NewHub creates a hub with no subscribers
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a subscriber whose channel holds up to buffer pending values
func (h *Hub[T]) Subscribe(buffer int) *Subscription[T] {
	ch := make(chan T, buffer)
	sub := &Subscription[T]{C: ch, ch: ch}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (h *Hub[T]) Unsubscribe(sub *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Broadcast sends value to every subscriber without blocking
func (h *Hub[T]) Broadcast(value T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- value:
		default:
		}
	}
}

// Len returns the number of subscribers
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
