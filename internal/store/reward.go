package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/changefeed"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

type RewardStore struct {
	db   *sql.DB
	feed *changefeed.Hub
}

var (
	_ service.RewardCatalogService = (*RewardStore)(nil)
	_ service.RewardLedgerService  = (*RewardStore)(nil)
)

func NewRewardStore(db *sql.DB, feed *changefeed.Hub) *RewardStore {
	return &RewardStore{db: db, feed: feed}
}

func scanReward(scanner interface{ Scan(...any) error }) (*model.RewardItem, error) {
	var r model.RewardItem
	err := scanner.Scan(&r.ID, &r.Name, &r.Detail, &r.Cost, &r.IconName, &r.AccentColor)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRedemption(scanner interface{ Scan(...any) error }) (*model.RewardRedemption, error) {
	var r model.RewardRedemption
	err := scanner.Scan(&r.ID, &r.RewardID, &r.RewardTitle, &r.MemberID, &r.MemberName, &r.Cost, &r.RedeemedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const rewardCols = `id, name, detail, cost, icon_name, accent_color`
const redemptionCols = `id, reward_id, reward_title, member_id, member_name, cost, redeemed_at`

// List returns the catalog in insertion order.
func (s *RewardStore) List(ctx context.Context, householdID string) ([]model.RewardItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE household_id = ? ORDER BY rowid ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.RewardItem
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) ObserveRewards(householdID string, h service.Handler[[]model.RewardItem]) listener.Token {
	return observe(s.feed, EntityRewards, householdID, h, func(ctx context.Context) ([]model.RewardItem, error) {
		return s.List(ctx, householdID)
	})
}

func (s *RewardStore) CreateReward(ctx context.Context, householdID string, r model.RewardItem) (model.RewardItem, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (id, household_id, name, detail, cost, icon_name, accent_color) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, householdID, r.Name, r.Detail, r.Cost, r.IconName, r.AccentColor,
	)
	if err != nil {
		return model.RewardItem{}, fmt.Errorf("insert reward: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityRewards, "created", householdID, r.ID))
	return r, nil
}

func (s *RewardStore) UpdateReward(ctx context.Context, householdID string, r model.RewardItem) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET name = ?, detail = ?, cost = ?, icon_name = ?, accent_color = ?
		 WHERE id = ? AND household_id = ?`,
		r.Name, r.Detail, r.Cost, r.IconName, r.AccentColor, r.ID, householdID,
	)
	if err != nil {
		return fmt.Errorf("update reward: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NotFound("reward", r.ID)
	}
	s.feed.Publish(changefeed.NewChange(EntityRewards, "updated", householdID, r.ID))
	return nil
}

// DeleteReward removes the catalog entry. Past redemptions keep their copy of
// the title and cost.
func (s *RewardStore) DeleteReward(ctx context.Context, householdID, rewardID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = ? AND household_id = ?`, rewardID, householdID)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityRewards, "deleted", householdID, rewardID))
	return nil
}

// ListRedemptions returns the ledger newest first.
func (s *RewardStore) ListRedemptions(ctx context.Context, householdID string) ([]model.RewardRedemption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+redemptionCols+` FROM reward_redemptions WHERE household_id = ? ORDER BY redeemed_at DESC, rowid DESC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []model.RewardRedemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}

func (s *RewardStore) ObserveRedemptions(householdID string, h service.Handler[[]model.RewardRedemption]) listener.Token {
	return observe(s.feed, EntityRedemptions, householdID, h, func(ctx context.Context) ([]model.RewardRedemption, error) {
		return s.ListRedemptions(ctx, householdID)
	})
}

// Redeem appends r to the ledger. Ledger rows are never updated or deleted
// except when their household is.
func (s *RewardStore) Redeem(ctx context.Context, householdID string, r model.RewardRedemption) (model.RewardRedemption, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RedeemedAt.IsZero() {
		r.RedeemedAt = time.Now()
	}
	r.RedeemedAt = r.RedeemedAt.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reward_redemptions (id, household_id, reward_id, reward_title, member_id, member_name, cost, redeemed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, householdID, r.RewardID, r.RewardTitle, r.MemberID, r.MemberName, r.Cost, r.RedeemedAt,
	)
	if err != nil {
		return model.RewardRedemption{}, fmt.Errorf("insert redemption: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityRedemptions, "created", householdID, r.ID))
	return r, nil
}
