package biz

import "sync"

// Signal is a typed, in-process publish/subscribe channel. Delivery is
// synchronous and in registration order: Publish returns only after every
// listener has run, so a listener always observes an event before the next
// state mutation occurs.
type Signal[T any] struct {
	mu        sync.Mutex
	nextID    int
	order     []int
	listeners map[int]func(T)
}

// NewSignal creates an empty signal.
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{
		listeners: make(map[int]func(T)),
	}
}

// Subscribe registers fn and returns a function that removes it again.
// Unsubscribing twice is a no-op.
func (s *Signal[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.listeners[id]; !ok {
			return
		}
		delete(s.listeners, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers event to every live listener in registration order.
func (s *Signal[T]) Publish(event T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// DetachAll removes every listener. Required for deterministic shutdown.
func (s *Signal[T]) DetachAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = make(map[int]func(T))
	s.order = nil
}

// Len returns the number of live listeners.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
