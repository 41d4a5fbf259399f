package memory

import (
	"sync"

	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/service"
)

// feed fans snapshots for one collection out to handlers grouped by scope.
type feed[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]service.Handler[T]
}

func newFeed[T any]() *feed[T] {
	return &feed[T]{subs: make(map[string]map[uint64]service.Handler[T])}
}

func (f *feed[T]) add(scope string, h service.Handler[T]) listener.Token {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	if f.subs[scope] == nil {
		f.subs[scope] = make(map[uint64]service.Handler[T])
	}
	f.subs[scope][id] = h
	f.mu.Unlock()

	return listener.Func(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[scope], id)
		if len(f.subs[scope]) == 0 {
			delete(f.subs, scope)
		}
	})
}

func (f *feed[T]) handlers(scope string) []service.Handler[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	hs := make([]service.Handler[T], 0, len(f.subs[scope]))
	for _, h := range f.subs[scope] {
		hs = append(hs, h)
	}
	return hs
}

func (f *feed[T]) publish(scope string, v T) {
	for _, h := range f.handlers(scope) {
		h(v, nil)
	}
}

func (f *feed[T]) fail(scope string, err error) {
	var zero T
	for _, h := range f.handlers(scope) {
		h(zero, err)
	}
}

func (f *feed[T]) scopes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subs))
	for s := range f.subs {
		out = append(out, s)
	}
	return out
}

func (f *feed[T]) count(scope string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[scope])
}
