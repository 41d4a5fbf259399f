package state

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/observable"
	"github.com/dukerupert/chorely/internal/service"
)

func rewardID(r model.RewardItem) string { return r.ID }

func redemptionID(r model.RewardRedemption) string { return r.ID }

// RewardsStore owns the household's reward catalog and its redemption
// ledger. The catalog is ordered by cost here; services do not guarantee it.
type RewardsStore struct {
	catalogSvc service.RewardCatalogService
	ledgerSvc  service.RewardLedgerService
	logger     *slog.Logger

	catalog *scoped[model.RewardItem]
	ledger  *scoped[model.RewardRedemption]
	errs    *observable.Value[error]
}

func NewRewardsStore(catalogSvc service.RewardCatalogService, ledgerSvc service.RewardLedgerService, dispatch mainloop.Dispatcher, logger *slog.Logger) *RewardsStore {
	errs := observable.NewValue[error](nil)
	return &RewardsStore{
		catalogSvc: catalogSvc,
		ledgerSvc:  ledgerSvc,
		logger:     logger,
		errs:       errs,
		catalog: newScoped(logger.With("collection", "rewards"), dispatch, errs, catalogSvc.ObserveRewards, func(items []model.RewardItem) {
			slices.SortStableFunc(items, func(a, b model.RewardItem) int {
				if a.Cost != b.Cost {
					return a.Cost - b.Cost
				}
				return strings.Compare(a.Name, b.Name)
			})
		}),
		ledger: newScoped(logger.With("collection", "redemptions"), dispatch, errs, ledgerSvc.ObserveRedemptions, func(items []model.RewardRedemption) {
			slices.SortStableFunc(items, func(a, b model.RewardRedemption) int {
				return b.RedeemedAt.Compare(a.RedeemedAt)
			})
		}),
	}
}

func (s *RewardsStore) Bind(householdID string) {
	s.catalog.bind(householdID)
	s.ledger.bind(householdID)
}

func (s *RewardsStore) Catalog() observable.Observable[Snapshot[model.RewardItem]] {
	return s.catalog.state
}

func (s *RewardsStore) Ledger() observable.Observable[Snapshot[model.RewardRedemption]] {
	return s.ledger.state
}

func (s *RewardsStore) LastError() observable.Observable[error] { return s.errs }

func (s *RewardsStore) Reward(id string) (model.RewardItem, bool) {
	return findID(s.catalog.items(), id, rewardID)
}

func (s *RewardsStore) fail(err error) error {
	s.errs.Set(err)
	return err
}

func validateReward(r model.RewardItem) (model.RewardItem, error) {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return r, apperror.ValidationFailed("name", "reward name is required")
	}
	if r.Cost <= 0 {
		return r, apperror.ValidationFailed("cost", "cost must be positive")
	}
	return r, nil
}

func (s *RewardsStore) CreateReward(ctx context.Context, r model.RewardItem) (model.RewardItem, error) {
	r, err := validateReward(r)
	if err != nil {
		return model.RewardItem{}, s.fail(err)
	}
	hid := s.catalog.current()
	if hid == "" {
		return model.RewardItem{}, s.fail(apperror.MissingScope("household"))
	}

	created, err := s.catalogSvc.CreateReward(ctx, hid, r)
	if err != nil {
		return model.RewardItem{}, s.fail(fmt.Errorf("create reward: %w", err))
	}
	s.catalog.mutate(hid, func(items []model.RewardItem) []model.RewardItem {
		return upsert(items, created, rewardID)
	})
	return created, nil
}

func (s *RewardsStore) UpdateReward(ctx context.Context, r model.RewardItem) error {
	r, err := validateReward(r)
	if err != nil {
		return s.fail(err)
	}
	hid := s.catalog.current()
	if hid == "" {
		return s.fail(apperror.MissingScope("household"))
	}
	if _, ok := s.Reward(r.ID); !ok {
		return s.fail(apperror.NotFound("reward", r.ID))
	}

	if err := s.catalogSvc.UpdateReward(ctx, hid, r); err != nil {
		return s.fail(fmt.Errorf("update reward: %w", err))
	}
	s.catalog.mutate(hid, func(items []model.RewardItem) []model.RewardItem {
		return upsert(items, r, rewardID)
	})
	return nil
}

func (s *RewardsStore) DeleteReward(ctx context.Context, id string) error {
	hid := s.catalog.current()
	if hid == "" {
		return s.fail(apperror.MissingScope("household"))
	}

	if err := s.catalogSvc.DeleteReward(ctx, hid, id); err != nil {
		return s.fail(fmt.Errorf("delete reward: %w", err))
	}
	s.catalog.mutate(hid, func(items []model.RewardItem) []model.RewardItem {
		return removeID(items, id, rewardID)
	})
	return nil
}

// Redeem appends a ledger entry for member spending reward.Cost. Balance
// checks are the caller's job.
func (s *RewardsStore) Redeem(ctx context.Context, reward model.RewardItem, member model.HouseholdMember) (model.RewardRedemption, error) {
	hid := s.ledger.current()
	if hid == "" {
		return model.RewardRedemption{}, s.fail(apperror.MissingScope("household"))
	}

	entry, err := s.ledgerSvc.Redeem(ctx, hid, model.RewardRedemption{
		RewardID:    reward.ID,
		RewardTitle: reward.Name,
		MemberID:    member.ID,
		MemberName:  member.Name,
		Cost:        reward.Cost,
	})
	if err != nil {
		return model.RewardRedemption{}, s.fail(fmt.Errorf("redeem reward: %w", err))
	}
	s.ledger.mutate(hid, func(items []model.RewardRedemption) []model.RewardRedemption {
		return upsert(items, entry, redemptionID)
	})
	s.logger.Info("reward redeemed", "reward_id", reward.ID, "member_id", member.ID, "cost", reward.Cost)
	return entry, nil
}

func (s *RewardsStore) Close() {
	s.catalog.close()
	s.ledger.close()
}
