// Package viewmodel derives presentation state from the domain stores. Each
// view model subscribes to its upstream observables and recomputes its state
// on the main context whenever any of them emits.
package viewmodel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/observable"
	"github.com/dukerupert/chorely/internal/state"
)

// Alert is a user-facing message raised by an action.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

type RewardsState struct {
	Member          *model.HouseholdMember   `json:"member"`
	LifetimePoints  int                      `json:"lifetime_points"`
	AvailablePoints int                      `json:"available_points"`
	Catalog         []model.RewardItem       `json:"catalog"`
	Redemptions     []model.RewardRedemption `json:"redemptions"`
	Leaderboard     []LeaderboardEntry       `json:"leaderboard"`
	Redeeming       bool                     `json:"redeeming"`
	Loading         bool                     `json:"loading"`
}

// Affordable reports whether the member can redeem r right now.
func (s RewardsState) Affordable(r model.RewardItem) bool {
	return s.Member != nil && s.AvailablePoints >= r.Cost
}

// RewardsViewModel derives point balances and the leaderboard from tasks,
// the ledger and the directory, and gates redemptions.
type RewardsViewModel struct {
	tasks    *state.TaskBoardStore
	rewards  *state.RewardsStore
	auth     *state.AuthStore
	members  *state.MemberDirectory
	dispatch mainloop.Dispatcher
	logger   *slog.Logger

	state  *observable.Value[RewardsState]
	alert  *observable.Value[*Alert]
	tokens listener.Bag

	mu        sync.Mutex
	redeeming bool
}

func NewRewardsViewModel(tasks *state.TaskBoardStore, rewards *state.RewardsStore, auth *state.AuthStore, members *state.MemberDirectory, dispatch mainloop.Dispatcher, logger *slog.Logger) *RewardsViewModel {
	vm := &RewardsViewModel{
		tasks:    tasks,
		rewards:  rewards,
		auth:     auth,
		members:  members,
		dispatch: dispatch,
		logger:   logger,
		state:    observable.NewValue(RewardsState{}),
		alert:    observable.NewValue[*Alert](nil),
	}
	vm.tokens.Add(tasks.Tasks().Subscribe(func(state.Snapshot[model.TaskItem]) { vm.recompute() }))
	vm.tokens.Add(rewards.Catalog().Subscribe(func(state.Snapshot[model.RewardItem]) { vm.recompute() }))
	vm.tokens.Add(rewards.Ledger().Subscribe(func(state.Snapshot[model.RewardRedemption]) { vm.recompute() }))
	vm.tokens.Add(auth.Member().Subscribe(func(*model.HouseholdMember) { vm.recompute() }))
	vm.tokens.Add(members.Members().Subscribe(func(state.Snapshot[model.HouseholdMember]) { vm.recompute() }))
	return vm
}

func (vm *RewardsViewModel) State() observable.Observable[RewardsState] { return vm.state }

func (vm *RewardsViewModel) Alert() observable.Observable[*Alert] { return vm.alert }

// DismissAlert clears the current alert.
func (vm *RewardsViewModel) DismissAlert() { vm.alert.Set(nil) }

func (vm *RewardsViewModel) recompute() {
	tasks := vm.tasks.Tasks().Get()
	catalog := vm.rewards.Catalog().Get()
	ledger := vm.rewards.Ledger().Get()
	directory := vm.members.Members().Get()
	member := vm.auth.CurrentMember()

	vm.mu.Lock()
	redeeming := vm.redeeming
	vm.mu.Unlock()

	s := RewardsState{
		Member:      member,
		Catalog:     catalog.Items,
		Leaderboard: Leaderboard(directory.Items, tasks.Items, ledger.Items),
		Redeeming:   redeeming,
		Loading:     tasks.Loading() || catalog.Loading() || ledger.Loading(),
	}
	if member != nil {
		s.LifetimePoints = LifetimePoints(tasks.Items, *member)
		s.AvailablePoints = AvailablePoints(tasks.Items, ledger.Items, *member)
		s.Redemptions = Redemptions(ledger.Items, *member)
	}
	vm.state.Set(s)
}

func (vm *RewardsViewModel) setRedeeming(v bool) {
	vm.mu.Lock()
	vm.redeeming = v
	vm.mu.Unlock()
	vm.dispatch.Post(vm.recompute)
}

// Redeem spends the current member's points on reward. It is rejected
// without a remote call when no member is signed in, the balance is too low
// or another redemption is still in flight.
func (vm *RewardsViewModel) Redeem(ctx context.Context, rewardID string) (model.RewardRedemption, error) {
	reward, ok := vm.rewards.Reward(rewardID)
	if !ok {
		return model.RewardRedemption{}, apperror.NotFound("reward", rewardID)
	}

	vm.mu.Lock()
	if vm.redeeming {
		vm.mu.Unlock()
		return model.RewardRedemption{}, apperror.Busy("a redemption is already in progress")
	}
	member := vm.auth.CurrentMember()
	if member == nil {
		vm.mu.Unlock()
		return model.RewardRedemption{}, vm.raise(apperror.Unauthorized("sign in to redeem rewards"))
	}
	available := AvailablePoints(vm.tasks.Tasks().Get().Items, vm.rewards.Ledger().Get().Items, *member)
	if available < reward.Cost {
		vm.mu.Unlock()
		return model.RewardRedemption{}, vm.raise(apperror.ValidationFailed("cost",
			fmt.Sprintf("%s costs %d points but only %d are available", reward.Name, reward.Cost, available)))
	}
	vm.redeeming = true
	vm.mu.Unlock()
	vm.dispatch.Post(vm.recompute)
	defer vm.setRedeeming(false)

	entry, err := vm.rewards.Redeem(ctx, reward, *member)
	if err != nil {
		vm.logger.Warn("redeem failed", "reward_id", reward.ID, "error", err)
		return model.RewardRedemption{}, vm.raise(err)
	}
	vm.alert.Set(&Alert{
		Title:   "Reward redeemed",
		Message: fmt.Sprintf("Enjoy %s! %d points spent.", reward.Name, reward.Cost),
		Success: true,
	})
	return entry, nil
}

func (vm *RewardsViewModel) raise(err error) error {
	vm.alert.Set(&Alert{Title: "Couldn't redeem reward", Message: err.Error()})
	return err
}

func (vm *RewardsViewModel) Close() { vm.tokens.CancelAll() }
