package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignal_PublishDeliversInRegistrationOrder(t *testing.T) {
	s := NewSignal[int]()

	var order []string
	s.Subscribe(func(v int) { order = append(order, "first") })
	s.Subscribe(func(v int) { order = append(order, "second") })
	s.Subscribe(func(v int) { order = append(order, "third") })

	s.Publish(1)

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestSignal_PublishIsSynchronous(t *testing.T) {
	s := NewSignal[string]()

	var got string
	s.Subscribe(func(v string) { got = v })

	s.Publish("event")

	// Publish returns only after every listener ran.
	assert.Equal(t, "event", got)
}

func TestSignal_Unsubscribe(t *testing.T) {
	s := NewSignal[int]()

	calls := 0
	unsubscribe := s.Subscribe(func(v int) { calls++ })

	s.Publish(1)
	unsubscribe()
	s.Publish(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Len())

	// Unsubscribing twice is a no-op.
	unsubscribe()
}

func TestSignal_UnsubscribeReleasesOrderSlot(t *testing.T) {
	s := NewSignal[int]()

	// Churning subscribers must not accumulate dead delivery slots.
	for i := 0; i < 100; i++ {
		s.Subscribe(func(v int) {})()
	}

	calls := 0
	defer s.Subscribe(func(v int) { calls++ })()

	s.Publish(1)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, s.Len())
	assert.Len(t, s.order, 1)
}

func TestSignal_DetachAll(t *testing.T) {
	s := NewSignal[int]()

	calls := 0
	s.Subscribe(func(v int) { calls++ })
	s.Subscribe(func(v int) { calls++ })
	assert.Equal(t, 2, s.Len())

	s.DetachAll()
	s.Publish(1)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, s.Len())
}

func TestSignal_SubscribeDuringLifetime(t *testing.T) {
	s := NewSignal[int]()

	var sum int
	s.Subscribe(func(v int) { sum += v })
	s.Publish(1)

	s.Subscribe(func(v int) { sum += v * 10 })
	s.Publish(2)

	assert.Equal(t, 23, sum)
}
