// Package observable implements the explicit publish/subscribe primitive used
// by stores and view models. A Value holds the latest state and replays it to
// every new subscriber before pushing subsequent changes.
package observable

import (
	"sync"

	"github.com/dukerupert/chorely/internal/listener"
)

// Observable is the read side of a Value.
type Observable[T any] interface {
	Get() T
	Subscribe(fn func(T)) listener.Token
}

// Value is a replay-one observable cell. Notifications for a single Value are
// delivered in the order Set was called and never concurrently.
type Value[T any] struct {
	mu     sync.Mutex
	value  T
	nextID uint64
	subs   map[uint64]func(T)

	// notify serializes deliveries so subscribers observe changes in order.
	notify sync.Mutex
}

// NewValue returns a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		value: initial,
		subs:  make(map[uint64]func(T)),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set replaces the current value and notifies every subscriber.
func (v *Value[T]) Set(val T) {
	v.notify.Lock()
	defer v.notify.Unlock()

	v.mu.Lock()
	v.value = val
	v.deliver(val)
}

// deliver notifies subscribers of val. It is called with v.notify and v.mu
// held and releases v.mu.
func (v *Value[T]) deliver(val T) {
	ids := make([]uint64, 0, len(v.subs))
	for id := range v.subs {
		ids = append(ids, id)
	}
	v.mu.Unlock()

	for _, id := range ids {
		v.mu.Lock()
		fn, ok := v.subs[id]
		v.mu.Unlock()
		if ok {
			fn(val)
		}
	}
}

// Update applies fn to the current value, stores the result, notifies
// subscribers and returns the new value.
func (v *Value[T]) Update(fn func(T) T) T {
	v.notify.Lock()
	defer v.notify.Unlock()

	v.mu.Lock()
	next := fn(v.value)
	v.value = next
	v.deliver(next)
	return next
}

// Subscribe registers fn and immediately calls it with the current value.
// The returned token detaches fn from future notifications.
func (v *Value[T]) Subscribe(fn func(T)) listener.Token {
	v.notify.Lock()
	defer v.notify.Unlock()

	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = fn
	cur := v.value
	v.mu.Unlock()

	fn(cur)

	return listener.Func(func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	})
}

// SubscriberCount returns the number of live subscriptions.
func (v *Value[T]) SubscriberCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}
