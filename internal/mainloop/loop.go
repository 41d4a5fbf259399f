// Package mainloop provides the single logical execution context on which
// store and view-model state is mutated. Callbacks from remote listeners are
// posted here instead of touching shared state from arbitrary goroutines.
package mainloop

import (
	"context"
	"sync"
)

// Dispatcher runs functions on the main execution context.
type Dispatcher interface {
	Post(fn func())
}

// Loop is a FIFO dispatcher backed by one goroutine. Post never blocks.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	started bool
}

// New returns a Loop. Call Run to start processing.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues fn. Functions posted after the loop stopped are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes posted functions in order until ctx is cancelled. It blocks.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()
	defer close(l.done)

	for {
		l.drain()
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

type immediate struct{}

func (immediate) Post(fn func()) { fn() }

// Immediate returns a Dispatcher that runs fn on the caller's goroutine.
// Tests and previews use it to keep delivery synchronous.
func Immediate() Dispatcher {
	return immediate{}
}

// Flush waits until every function posted to d before the call has run.
func Flush(ctx context.Context, d Dispatcher) error {
	done := make(chan struct{})
	d.Post(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
