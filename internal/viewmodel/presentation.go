package viewmodel

import (
	"log/slog"

	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/observable"
	"github.com/dukerupert/chorely/internal/state"
)

// Presentation is the top-level screen the UI should show.
type Presentation string

const (
	LoadingAccount   Presentation = "loadingAccount"
	Authentication   Presentation = "authentication"
	LoadingHousehold Presentation = "loadingHousehold"
	NeedsHousehold   Presentation = "needsHousehold"
	Dashboard        Presentation = "dashboard"
)

type PresentationInputs struct {
	AuthLoading             bool
	InitialSessionProcessed bool
	HasMember               bool
	HouseholdsLoading       bool
	HouseholdsEmpty         bool
}

// Resolve applies the inputs in priority order.
func Resolve(in PresentationInputs) Presentation {
	switch {
	case in.AuthLoading || !in.InitialSessionProcessed:
		return LoadingAccount
	case !in.HasMember:
		return Authentication
	case in.HouseholdsLoading:
		return LoadingHousehold
	case in.HouseholdsEmpty:
		return NeedsHousehold
	default:
		return Dashboard
	}
}

// PresentationViewModel recomputes the top-level screen from the auth and
// household stores.
type PresentationViewModel struct {
	auth       *state.AuthStore
	households *state.HouseholdStore
	logger     *slog.Logger

	state  *observable.Value[Presentation]
	tokens listener.Bag
}

func NewPresentationViewModel(auth *state.AuthStore, households *state.HouseholdStore, logger *slog.Logger) *PresentationViewModel {
	vm := &PresentationViewModel{
		auth:       auth,
		households: households,
		logger:     logger,
		state:      observable.NewValue(LoadingAccount),
	}
	vm.tokens.Add(auth.Loading().Subscribe(func(bool) { vm.recompute() }))
	vm.tokens.Add(auth.Initialized().Subscribe(func(bool) { vm.recompute() }))
	vm.tokens.Add(auth.Member().Subscribe(func(*model.HouseholdMember) { vm.recompute() }))
	vm.tokens.Add(households.Households().Subscribe(func(state.Snapshot[model.HouseholdSummary]) { vm.recompute() }))
	return vm
}

func (vm *PresentationViewModel) State() observable.Observable[Presentation] { return vm.state }

func (vm *PresentationViewModel) recompute() {
	hh := vm.households.Households().Get()
	next := Resolve(PresentationInputs{
		AuthLoading:             vm.auth.Loading().Get(),
		InitialSessionProcessed: vm.auth.Initialized().Get(),
		HasMember:               vm.auth.Member().Get() != nil,
		HouseholdsLoading:       hh.Phase != state.Bound,
		HouseholdsEmpty:         len(hh.Items) == 0,
	})
	if next != vm.state.Get() {
		vm.logger.Debug("presentation changed", "state", next)
		vm.state.Set(next)
	}
}

func (vm *PresentationViewModel) Close() { vm.tokens.CancelAll() }
