// Package state holds the domain stores. Each store owns one live collection
// scoped to a household or user id, re-subscribes when the scope changes and
// writes mutations through to its service before applying them locally.
package state

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/observable"
	"github.com/dukerupert/chorely/internal/service"
)

// Phase is the lifecycle of a scoped collection.
type Phase int

const (
	Unbound Phase = iota
	Loading
	Bound
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Bound:
		return "bound"
	default:
		return "unbound"
	}
}

// Snapshot is the visible state of a scoped collection. Items always belong
// to Scope.
type Snapshot[T any] struct {
	Scope string
	Phase Phase
	Items []T
}

// Loading reports whether the collection is waiting for its first snapshot.
func (s Snapshot[T]) Loading() bool {
	return s.Phase == Loading
}

type observeFunc[T any] func(scope string, h service.Handler[[]T]) listener.Token

// scoped is a collection bound to one scope id at a time. Snapshots from a
// superseded subscription are discarded by comparing generations, and the old
// token is cancelled before the new one is installed.
type scoped[T any] struct {
	logger   *slog.Logger
	dispatch mainloop.Dispatcher
	observe  observeFunc[T]
	sort     func([]T)
	errs     *observable.Value[error]

	mu    sync.Mutex
	scope string
	bound bool
	gen   uint64
	token listener.Token

	state *observable.Value[Snapshot[T]]
}

func newScoped[T any](logger *slog.Logger, dispatch mainloop.Dispatcher, errs *observable.Value[error], observe observeFunc[T], sort func([]T)) *scoped[T] {
	return &scoped[T]{
		logger:   logger,
		dispatch: dispatch,
		observe:  observe,
		sort:     sort,
		errs:     errs,
		state:    observable.NewValue(Snapshot[T]{}),
	}
}

// bind switches the collection to scope. An empty scope yields an empty Bound
// snapshot with no subscription. Binding the current scope again is a no-op.
func (c *scoped[T]) bind(scope string) {
	c.mu.Lock()
	if c.bound && c.scope == scope {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	old := c.token
	c.token = nil
	c.scope = scope
	c.bound = true

	if old != nil {
		old.Cancel()
	}

	if scope == "" {
		c.state.Set(Snapshot[T]{Phase: Bound})
		c.mu.Unlock()
		return
	}
	c.state.Set(Snapshot[T]{Scope: scope, Phase: Loading})
	c.mu.Unlock()

	c.logger.Debug("subscribing", "scope", scope, "generation", gen)
	tok := c.observe(scope, func(items []T, err error) {
		c.dispatch.Post(func() { c.apply(gen, scope, items, err) })
	})

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		tok.Cancel()
		return
	}
	c.token = tok
	c.mu.Unlock()
}

func (c *scoped[T]) apply(gen uint64, scope string, items []T, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		c.logger.Debug("discarding stale snapshot", "scope", scope, "generation", gen, "current", c.gen)
		return
	}
	if err != nil {
		c.logger.Warn("snapshot failed", "scope", scope, "error", err)
		c.errs.Set(err)
		return
	}
	items = slices.Clone(items)
	if c.sort != nil {
		c.sort(items)
	}
	c.state.Set(Snapshot[T]{Scope: scope, Phase: Bound, Items: items})
}

// current returns the bound scope, or "" when unbound.
func (c *scoped[T]) current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

func (c *scoped[T]) items() []T {
	return c.state.Get().Items
}

// mutate applies fn to the local items on the main context, provided the
// collection is still bound to scope.
func (c *scoped[T]) mutate(scope string, fn func([]T) []T) {
	c.dispatch.Post(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.scope != scope {
			c.logger.Debug("dropping local change for old scope", "scope", scope, "current", c.scope)
			return
		}
		snap := c.state.Get()
		items := fn(slices.Clone(snap.Items))
		if c.sort != nil {
			c.sort(items)
		}
		c.state.Set(Snapshot[T]{Scope: scope, Phase: snap.Phase, Items: items})
	})
}

// close cancels the subscription and returns the collection to Unbound.
func (c *scoped[T]) close() {
	c.mu.Lock()
	c.gen++
	old := c.token
	c.token = nil
	c.scope = ""
	c.bound = false
	c.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	c.state.Set(Snapshot[T]{})
}

// upsert replaces the item with the same id or appends v.
func upsert[T any](items []T, v T, idOf func(T) string) []T {
	id := idOf(v)
	if i := slices.IndexFunc(items, func(x T) bool { return idOf(x) == id }); i >= 0 {
		items[i] = v
		return items
	}
	return append(items, v)
}

func removeID[T any](items []T, id string, idOf func(T) string) []T {
	return slices.DeleteFunc(items, func(x T) bool { return idOf(x) == id })
}

func findID[T any](items []T, id string, idOf func(T) string) (T, bool) {
	for _, x := range items {
		if idOf(x) == id {
			return x, true
		}
	}
	var zero T
	return zero, false
}
