package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

func setupHouseholdTestDB(t *testing.T) *HouseholdStore {
	t.Helper()
	db, feed := setupTestDB(t)
	return NewHouseholdStore(db, feed)
}

func TestHouseholdCreate(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()

	h, err := hs.CreateHousehold(ctx, "Home", "u1")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if h.ID == "" {
		t.Error("expected non-empty id")
	}
	if h.Name != "Home" {
		t.Errorf("name = %q, want %q", h.Name, "Home")
	}
	if len(h.InviteCode) != 6 {
		t.Errorf("invite code length = %d, want 6", len(h.InviteCode))
	}

	got, err := hs.GetByID(ctx, h.ID)
	if err != nil {
		t.Fatalf("get household: %v", err)
	}
	if got == nil || got.InviteCode != h.InviteCode {
		t.Errorf("got = %+v, want %+v", got, h)
	}

	list, err := hs.ListForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != h.ID {
		t.Errorf("households of u1 = %+v, want [%s]", list, h.ID)
	}
}

func TestHouseholdGetByIDNotFound(t *testing.T) {
	hs := setupHouseholdTestDB(t)

	got, err := hs.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get household: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestHouseholdListForUserSortedByName(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()

	hs.CreateHousehold(ctx, "zeta", "u1")
	hs.CreateHousehold(ctx, "Alpha", "u1")
	hs.CreateHousehold(ctx, "Other", "u2")

	list, err := hs.ListForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Name != "Alpha" || list[1].Name != "zeta" {
		t.Errorf("order = [%s %s], want [Alpha zeta]", list[0].Name, list[1].Name)
	}
}

func TestHouseholdJoin(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()

	h, _ := hs.CreateHousehold(ctx, "Home", "u1")

	joined, err := hs.JoinHousehold(ctx, h.InviteCode, "u2")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.ID != h.ID {
		t.Errorf("joined id = %q, want %q", joined.ID, h.ID)
	}

	// Joining twice is a no-op.
	if _, err := hs.JoinHousehold(ctx, h.InviteCode, "u2"); err != nil {
		t.Fatalf("join again: %v", err)
	}
	list, _ := hs.ListForUser(ctx, "u2")
	if len(list) != 1 || list[0].ID != h.ID {
		t.Errorf("households of u2 = %+v, want [%s]", list, h.ID)
	}
}

func TestHouseholdJoinBadCode(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()
	hs.CreateHousehold(ctx, "Home", "u1")

	for _, code := range []string{"BADCODE", ""} {
		_, err := hs.JoinHousehold(ctx, code, "u2")
		if !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("join %q: err = %v, want not found", code, err)
		}
	}
	list, _ := hs.ListForUser(ctx, "u2")
	if len(list) != 0 {
		t.Errorf("u2 households = %d, want 0", len(list))
	}
}

func TestHouseholdRenameAndRefreshCode(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()
	h, _ := hs.CreateHousehold(ctx, "Home", "u1")

	if err := hs.RenameHousehold(ctx, h.ID, "Cabin"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	code, err := hs.RefreshInviteCode(ctx, h.ID)
	if err != nil {
		t.Fatalf("refresh code: %v", err)
	}

	got, _ := hs.GetByID(ctx, h.ID)
	if got.Name != "Cabin" {
		t.Errorf("name = %q, want Cabin", got.Name)
	}
	if got.InviteCode != code {
		t.Errorf("code = %q, want %q", got.InviteCode, code)
	}

	if err := hs.RenameHousehold(ctx, "missing", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("rename missing: err = %v, want not found", err)
	}
}

func TestHouseholdLeave(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()
	h, _ := hs.CreateHousehold(ctx, "Home", "u1")

	if err := hs.LeaveHousehold(ctx, h.ID, "u1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	list, _ := hs.ListForUser(ctx, "u1")
	if len(list) != 0 {
		t.Errorf("households = %d, want 0", len(list))
	}
}

func TestHouseholdDeleteRemovesScopedRows(t *testing.T) {
	db, feed := setupTestDB(t)
	hs := NewHouseholdStore(db, feed)
	tags := NewTagStore(db, feed)
	ctx := context.Background()

	h, _ := hs.CreateHousehold(ctx, "Home", "u1")
	if _, err := tags.CreateTag(ctx, h.ID, model.TagItem{Name: "Kitchen"}); err != nil {
		t.Fatalf("create tag: %v", err)
	}

	if err := hs.DeleteHousehold(ctx, h.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, _ := hs.GetByID(ctx, h.ID)
	if got != nil {
		t.Error("expected nil after delete")
	}
	list, _ := tags.List(ctx, h.ID)
	if len(list) != 0 {
		t.Errorf("tags = %d, want 0", len(list))
	}
}

func TestHouseholdObserve(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()

	c := newCollector[[]model.HouseholdSummary]()
	tok := hs.ObserveHouseholds("u1", c.handle)
	defer tok.Cancel()

	if first := c.next(t); len(first) != 0 {
		t.Fatalf("initial = %v, want empty", first)
	}

	h, _ := hs.CreateHousehold(ctx, "Home", "u1")
	got := c.until(t, func(l []model.HouseholdSummary) bool { return len(l) == 1 })
	if got[0].ID != h.ID {
		t.Errorf("id = %q, want %q", got[0].ID, h.ID)
	}

	hs.RenameHousehold(ctx, h.ID, "Cabin")
	c.until(t, func(l []model.HouseholdSummary) bool { return len(l) == 1 && l[0].Name == "Cabin" })
}
