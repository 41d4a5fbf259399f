package database

import (
	"context"
	"testing"
)

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	tables := []string{
		"households", "household_members", "accounts", "sessions", "profiles",
		"tags", "chore_templates", "tasks", "rewards", "reward_redemptions", "settings",
	}
	for _, name := range tables {
		var got string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&got)
		if err != nil {
			t.Errorf("table %s: %v", name, err)
		}
	}
}

func TestTaskStatusConstraint(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO households (id, name) VALUES ('h1', 'Home')`); err != nil {
		t.Fatalf("insert household: %v", err)
	}
	_, err = db.Exec(`INSERT INTO tasks (id, household_id, title, status, due_date) VALUES ('t1', 'h1', 'Dishes', 'done', CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Error("expected check constraint error for unknown status")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	v, err := Migrate(context.Background(), db)
	if err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
}

func TestOpenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if db, err := OpenContext(ctx, ":memory:"); err == nil {
		db.Close()
		t.Error("OpenContext succeeded with a cancelled context")
	}
}
