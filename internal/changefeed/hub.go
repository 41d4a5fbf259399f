// Package changefeed notifies in-process observers that a stored collection
// changed so they can re-read it. It gives the SQLite backend the same
// replay-then-push behaviour remote snapshot listeners have.
package changefeed

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/chorely/internal/listener"
)

// Change describes a write to one entity collection. An empty Scope reaches
// every subscriber of the entity.
type Change struct {
	Type   string
	Entity string
	Action string
	Scope  string
	ID     string
}

// NewChange creates a Change with the Type field derived from entity and action.
func NewChange(entity, action, scope, id string) Change {
	return Change{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		Scope:  scope,
		ID:     id,
	}
}

type subscriber struct {
	entity string
	scope  string
	wake   chan struct{}
	done   chan struct{}

	// mu serializes deliveries with Cancel.
	mu      sync.Mutex
	stopped bool
}

// deliver runs fn unless the subscription has been cancelled.
func (s *subscriber) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	fn()
}

// Hub maintains the set of subscribers and fans changes out to them.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe calls refresh once immediately and then again after every change
// to entity within scope. Changes that arrive while a refresh is pending are
// coalesced into it. refresh runs on a goroutine owned by the subscription
// and is never called concurrently with itself.
//
// refresh does its slow work first and hands the result to deliver. deliver
// drops the result once the token is cancelled, and Cancel waits for a
// delivery in progress, so nothing is delivered after Cancel returns. A
// delivered func must not cancel its own subscription.
func (h *Hub) Subscribe(entity, scope string, refresh func(deliver func(func()))) listener.Token {
	sub := &subscriber{
		entity: entity,
		scope:  scope,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	refresh(sub.deliver)

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case <-sub.wake:
				select {
				case <-sub.done:
					return
				default:
				}
				refresh(sub.deliver)
			}
		}
	}()

	return listener.Func(func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		sub.mu.Lock()
		sub.stopped = true
		sub.mu.Unlock()
		close(sub.done)
	})
}

// Publish wakes every subscriber interested in c.
func (h *Hub) Publish(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for sub := range h.subs {
		if sub.entity != c.Entity {
			continue
		}
		if c.Scope != "" && sub.scope != c.Scope {
			continue
		}
		select {
		case sub.wake <- struct{}{}:
		default:
			// Refresh already pending; it will observe this change too.
		}
		n++
	}
	h.logger.Debug("change published", "type", c.Type, "scope", c.Scope, "id", c.ID, "subscribers", n)
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
