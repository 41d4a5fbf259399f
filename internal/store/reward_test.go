package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

func setupRewardTestDB(t *testing.T) (*RewardStore, string) {
	t.Helper()
	db, feed := setupTestDB(t)
	h, err := NewHouseholdStore(db, feed).CreateHousehold(context.Background(), "Home", "u1")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return NewRewardStore(db, feed), h.ID
}

func TestRewardCRUD(t *testing.T) {
	rs, hid := setupRewardTestDB(t)
	ctx := context.Background()

	// Create
	reward, err := rs.CreateReward(ctx, hid, model.RewardItem{Name: "Ice Cream Trip", Detail: "Go get ice cream!", Cost: 50})
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	if reward.ID == "" {
		t.Error("expected id")
	}

	// Update
	reward.Name = "Movie Night"
	reward.Cost = 100
	if err := rs.UpdateReward(ctx, hid, reward); err != nil {
		t.Fatalf("update reward: %v", err)
	}
	list, _ := rs.List(ctx, hid)
	if len(list) != 1 || list[0] != reward {
		t.Errorf("list = %+v, want [%+v]", list, reward)
	}

	// Delete
	if err := rs.DeleteReward(ctx, hid, reward.ID); err != nil {
		t.Fatalf("delete reward: %v", err)
	}
	list, _ = rs.List(ctx, hid)
	if len(list) != 0 {
		t.Errorf("len = %d, want 0", len(list))
	}

	if err := rs.UpdateReward(ctx, hid, reward); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("update deleted: err = %v, want not found", err)
	}
}

func TestRewardCostMustBePositive(t *testing.T) {
	rs, hid := setupRewardTestDB(t)

	if _, err := rs.CreateReward(context.Background(), hid, model.RewardItem{Name: "Free", Cost: 0}); err == nil {
		t.Error("expected error for zero cost")
	}
}

func TestRedemptionsNewestFirst(t *testing.T) {
	rs, hid := setupRewardTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, title := range []string{"first", "second", "third"} {
		_, err := rs.Redeem(ctx, hid, model.RewardRedemption{
			RewardID: "r1", RewardTitle: title, MemberID: "m1", MemberName: "Alice",
			Cost: 10, RedeemedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("redeem %s: %v", title, err)
		}
	}

	list, err := rs.ListRedemptions(ctx, hid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"third", "second", "first"}
	for i, title := range want {
		if list[i].RewardTitle != title {
			t.Errorf("list[%d] = %q, want %q", i, list[i].RewardTitle, title)
		}
	}
	if !list[2].RedeemedAt.Equal(base) {
		t.Errorf("redeemed_at = %v, want %v", list[2].RedeemedAt, base)
	}
}

func TestRedeemSurvivesRewardDelete(t *testing.T) {
	rs, hid := setupRewardTestDB(t)
	ctx := context.Background()

	reward, _ := rs.CreateReward(ctx, hid, model.RewardItem{Name: "Movie", Cost: 30})
	red, err := rs.Redeem(ctx, hid, model.RewardRedemption{RewardID: reward.ID, RewardTitle: reward.Name, MemberID: "m1", MemberName: "Alice", Cost: 30})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if red.RedeemedAt.IsZero() {
		t.Error("expected redeemed_at to be stamped")
	}
	rs.DeleteReward(ctx, hid, reward.ID)

	list, _ := rs.ListRedemptions(ctx, hid)
	if len(list) != 1 || list[0].RewardTitle != "Movie" {
		t.Errorf("ledger = %+v, want one Movie entry", list)
	}
}
