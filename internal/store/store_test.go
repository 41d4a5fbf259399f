package store

import (
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/chorely/internal/changefeed"
	"github.com/dukerupert/chorely/internal/database"
)

func setupTestDB(t *testing.T) (*sql.DB, *changefeed.Hub) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, changefeed.NewHub(slog.Default())
}

// collector gathers snapshots delivered by an Observe call.
type collector[T any] struct {
	ch chan T
}

func newCollector[T any]() *collector[T] {
	return &collector[T]{ch: make(chan T, 16)}
}

func (c *collector[T]) handle(v T, err error) {
	if err != nil {
		return
	}
	c.ch <- v
}

func (c *collector[T]) next(t *testing.T) T {
	t.Helper()
	select {
	case v := <-c.ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

// until reads snapshots until cond holds.
func (c *collector[T]) until(t *testing.T, cond func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-c.ch:
			if cond(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			var zero T
			return zero
		}
	}
}
