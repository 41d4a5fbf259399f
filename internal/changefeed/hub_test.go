package changefeed

import (
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func count(n *atomic.Int32) func(func(func())) {
	return func(deliver func(func())) {
		deliver(func() { n.Add(1) })
	}
}

func TestSubscribeReplaysImmediately(t *testing.T) {
	hub := NewHub(slog.Default())
	var calls atomic.Int32

	tok := hub.Subscribe("tasks", "h1", count(&calls))
	defer tok.Cancel()

	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestPublishMatchesEntityAndScope(t *testing.T) {
	hub := NewHub(slog.Default())
	var h1, h2, tags atomic.Int32

	t1 := hub.Subscribe("tasks", "h1", count(&h1))
	t2 := hub.Subscribe("tasks", "h2", count(&h2))
	t3 := hub.Subscribe("tags", "h1", count(&tags))
	defer t1.Cancel()
	defer t2.Cancel()
	defer t3.Cancel()

	hub.Publish(NewChange("tasks", "updated", "h1", "t1"))
	waitFor(t, func() bool { return h1.Load() == 2 })

	hub.Publish(NewChange("tasks", "deleted", "", ""))
	waitFor(t, func() bool { return h1.Load() == 3 && h2.Load() == 2 })

	if got := tags.Load(); got != 1 {
		t.Errorf("tags calls = %d, want 1", got)
	}
}

func TestCancelStopsRefresh(t *testing.T) {
	hub := NewHub(slog.Default())
	var calls atomic.Int32

	tok := hub.Subscribe("tags", "h1", count(&calls))
	tok.Cancel()
	tok.Cancel()

	hub.Publish(NewChange("tags", "created", "h1", "x"))
	time.Sleep(20 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("subscribers = %d, want 0", hub.SubscriberCount())
	}
}

func TestNewChange(t *testing.T) {
	c := NewChange("rewards", "created", "h1", "r1")
	if c.Type != "rewards_created" {
		t.Errorf("type = %q, want rewards_created", c.Type)
	}
}

func TestCancelDropsRefreshInFlight(t *testing.T) {
	hub := NewHub(slog.Default())
	var delivered atomic.Int32
	loading := make(chan struct{})
	release := make(chan struct{})

	first := true
	tok := hub.Subscribe("tasks", "h1", func(deliver func(func())) {
		if first {
			first = false
			deliver(func() {})
			return
		}
		close(loading)
		<-release
		deliver(func() { delivered.Add(1) })
	})

	hub.Publish(NewChange("tasks", "updated", "h1", "t1"))
	<-loading
	tok.Cancel()
	close(release)
	time.Sleep(20 * time.Millisecond)

	if got := delivered.Load(); got != 0 {
		t.Errorf("deliveries after cancel = %d, want 0", got)
	}
}

func TestCancelWaitsForDelivery(t *testing.T) {
	hub := NewHub(slog.Default())
	inside := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	first := true
	tok := hub.Subscribe("tags", "h1", func(deliver func(func())) {
		if first {
			first = false
			return
		}
		deliver(func() {
			close(inside)
			<-release
			finished.Store(true)
		})
	})

	hub.Publish(NewChange("tags", "created", "h1", "x"))
	<-inside
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	tok.Cancel()

	if !finished.Load() {
		t.Error("Cancel returned while a delivery was still running")
	}
}
