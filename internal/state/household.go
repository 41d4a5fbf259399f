package state

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/invite"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/observable"
	"github.com/dukerupert/chorely/internal/service"
)

func summaryID(h model.HouseholdSummary) string { return h.ID }

// HouseholdStore tracks the households of the signed-in user and which one
// is selected. Every household-scoped store follows the selection.
type HouseholdStore struct {
	svc    service.HouseholdService
	kv     service.KeyValueStore
	qr     *invite.QRRenderer
	logger *slog.Logger

	list    *scoped[model.HouseholdSummary]
	current *observable.Value[string]
	errs    *observable.Value[error]
	listTok listener.Token

	mu     sync.Mutex
	userID string
}

func NewHouseholdStore(svc service.HouseholdService, kv service.KeyValueStore, qr *invite.QRRenderer, dispatch mainloop.Dispatcher, logger *slog.Logger) *HouseholdStore {
	s := &HouseholdStore{
		svc:     svc,
		kv:      kv,
		qr:      qr,
		logger:  logger,
		current: observable.NewValue(model.PlaceholderHouseholdID),
		errs:    observable.NewValue[error](nil),
	}
	s.list = newScoped(logger, dispatch, s.errs, svc.ObserveHouseholds, func(items []model.HouseholdSummary) {
		slices.SortStableFunc(items, func(a, b model.HouseholdSummary) int {
			return strings.Compare(a.Name, b.Name)
		})
	})
	s.listTok = s.list.state.Subscribe(s.reconcileSelection)
	return s
}

// Households exposes the household list of the bound user.
func (s *HouseholdStore) Households() observable.Observable[Snapshot[model.HouseholdSummary]] {
	return s.list.state
}

// CurrentID exposes the selected household id, "" when none.
func (s *HouseholdStore) CurrentID() observable.Observable[string] {
	return s.current
}

func (s *HouseholdStore) LastError() observable.Observable[error] {
	return s.errs
}

// Current returns the selected household, if any.
func (s *HouseholdStore) Current() (model.HouseholdSummary, bool) {
	return findID(s.list.items(), s.current.Get(), summaryID)
}

// BindUser scopes the store to userID. An empty id clears the list.
func (s *HouseholdStore) BindUser(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
	s.list.bind(userID)
}

func (s *HouseholdStore) user() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// reconcileSelection keeps the selection valid for the latest list: the
// current id if still present, else the cached id, else the first household.
func (s *HouseholdStore) reconcileSelection(snap Snapshot[model.HouseholdSummary]) {
	if snap.Phase != Bound {
		return
	}
	if snap.Scope == "" {
		s.setCurrent(model.PlaceholderHouseholdID, "")
		return
	}

	cur := s.current.Get()
	if cur != "" && model.ContainsHousehold(snap.Items, cur) {
		h, _ := findID(snap.Items, cur, summaryID)
		s.persistSelection(h)
		return
	}
	if cached, ok := s.kv.Get(service.KeySelectedHouseholdID); ok && model.ContainsHousehold(snap.Items, cached) {
		h, _ := findID(snap.Items, cached, summaryID)
		s.setCurrent(h.ID, h.Name)
		return
	}
	if len(snap.Items) > 0 {
		s.setCurrent(snap.Items[0].ID, snap.Items[0].Name)
		return
	}
	s.setCurrent(model.PlaceholderHouseholdID, "")
}

func (s *HouseholdStore) setCurrent(id, name string) {
	if id != "" {
		s.persistSelection(model.HouseholdSummary{ID: id, Name: name})
	}
	if s.current.Get() != id {
		s.logger.Info("household selected", "household_id", id)
		s.current.Set(id)
	}
}

func (s *HouseholdStore) persistSelection(h model.HouseholdSummary) {
	if err := s.kv.Set(service.KeySelectedHouseholdID, h.ID); err != nil {
		s.logger.Warn("cache selected household", "error", err)
	}
	if err := s.kv.Set(service.KeySelectedHouseholdName, h.Name); err != nil {
		s.logger.Warn("cache selected household name", "error", err)
	}
}

func (s *HouseholdStore) fail(err error) error {
	s.errs.Set(err)
	return err
}

// Select makes householdID the active household. The id is checked against
// the current list right away; the switch itself happens on the dispatcher
// and is skipped if the household has left the list by then.
func (s *HouseholdStore) Select(householdID string) error {
	if _, ok := findID(s.list.items(), householdID, summaryID); !ok {
		return s.fail(apperror.NotFound("household", householdID))
	}
	s.list.dispatch.Post(func() {
		if h, ok := findID(s.list.items(), householdID, summaryID); ok {
			s.setCurrent(h.ID, h.Name)
		}
	})
	return nil
}

func validateHouseholdName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "household name is required")
	}
	return name, nil
}

// Create makes a new household owned by the signed-in user and selects it.
func (s *HouseholdStore) Create(ctx context.Context, name string) (model.HouseholdSummary, error) {
	name, err := validateHouseholdName(name)
	if err != nil {
		return model.HouseholdSummary{}, s.fail(err)
	}
	uid := s.user()
	if uid == "" {
		return model.HouseholdSummary{}, s.fail(apperror.MissingScope("user"))
	}

	h, err := s.svc.CreateHousehold(ctx, name, uid)
	if err != nil {
		return model.HouseholdSummary{}, s.fail(fmt.Errorf("create household: %w", err))
	}
	s.addAndSelect(uid, h)
	return h, nil
}

// Join adds the signed-in user to the household with the given invite code
// and selects it.
func (s *HouseholdStore) Join(ctx context.Context, code string) (model.HouseholdSummary, error) {
	code = invite.Normalize(code)
	if code == "" {
		return model.HouseholdSummary{}, s.fail(apperror.ValidationFailed("invite_code", "invite code is required"))
	}
	uid := s.user()
	if uid == "" {
		return model.HouseholdSummary{}, s.fail(apperror.MissingScope("user"))
	}

	h, err := s.svc.JoinHousehold(ctx, code, uid)
	if err != nil {
		return model.HouseholdSummary{}, s.fail(fmt.Errorf("join household: %w", err))
	}
	s.addAndSelect(uid, h)
	return h, nil
}

func (s *HouseholdStore) addAndSelect(userID string, h model.HouseholdSummary) {
	s.list.mutate(userID, func(items []model.HouseholdSummary) []model.HouseholdSummary {
		return upsert(items, h, summaryID)
	})
	s.list.dispatch.Post(func() {
		if model.ContainsHousehold(s.list.items(), h.ID) {
			s.setCurrent(h.ID, h.Name)
		}
	})
}

func (s *HouseholdStore) Rename(ctx context.Context, householdID, name string) error {
	name, err := validateHouseholdName(name)
	if err != nil {
		return s.fail(err)
	}
	h, ok := findID(s.list.items(), householdID, summaryID)
	if !ok {
		return s.fail(apperror.NotFound("household", householdID))
	}

	if err := s.svc.RenameHousehold(ctx, householdID, name); err != nil {
		return s.fail(fmt.Errorf("rename household: %w", err))
	}
	h.Name = name
	s.list.mutate(s.user(), func(items []model.HouseholdSummary) []model.HouseholdSummary {
		return upsert(items, h, summaryID)
	})
	return nil
}

// RefreshInviteCode replaces the household's invite code. Codes handed out
// earlier stop working.
func (s *HouseholdStore) RefreshInviteCode(ctx context.Context, householdID string) (string, error) {
	h, ok := findID(s.list.items(), householdID, summaryID)
	if !ok {
		return "", s.fail(apperror.NotFound("household", householdID))
	}

	code, err := s.svc.RefreshInviteCode(ctx, householdID)
	if err != nil {
		return "", s.fail(fmt.Errorf("refresh invite code: %w", err))
	}
	h.InviteCode = code
	s.list.mutate(s.user(), func(items []model.HouseholdSummary) []model.HouseholdSummary {
		return upsert(items, h, summaryID)
	})
	return code, nil
}

// Leave removes the signed-in user from a household.
func (s *HouseholdStore) Leave(ctx context.Context, householdID string) error {
	uid := s.user()
	if uid == "" {
		return s.fail(apperror.MissingScope("user"))
	}
	if !model.ContainsHousehold(s.list.items(), householdID) {
		return s.fail(apperror.NotFound("household", householdID))
	}

	if err := s.svc.LeaveHousehold(ctx, householdID, uid); err != nil {
		return s.fail(fmt.Errorf("leave household: %w", err))
	}
	s.list.mutate(uid, func(items []model.HouseholdSummary) []model.HouseholdSummary {
		return removeID(items, householdID, summaryID)
	})
	return nil
}

// Delete removes a household permanently. The active household cannot be
// deleted.
func (s *HouseholdStore) Delete(ctx context.Context, householdID string) error {
	if householdID == s.current.Get() {
		return s.fail(apperror.Unauthorized("the active household cannot be deleted"))
	}
	if !model.ContainsHousehold(s.list.items(), householdID) {
		return s.fail(apperror.NotFound("household", householdID))
	}

	if err := s.svc.DeleteHousehold(ctx, householdID); err != nil {
		return s.fail(fmt.Errorf("delete household: %w", err))
	}
	s.list.mutate(s.user(), func(items []model.HouseholdSummary) []model.HouseholdSummary {
		return removeID(items, householdID, summaryID)
	})
	return nil
}

// InviteQR renders the household's current invite code as a PNG.
func (s *HouseholdStore) InviteQR(householdID string) ([]byte, error) {
	h, ok := findID(s.list.items(), householdID, summaryID)
	if !ok {
		return nil, apperror.NotFound("household", householdID)
	}
	if h.InviteCode == "" {
		return nil, apperror.ValidationFailed("invite_code", "household has no invite code")
	}
	return s.qr.PNG(h.ID, h.Name, h.InviteCode)
}

func (s *HouseholdStore) Close() {
	s.listTok.Cancel()
	s.list.close()
}

// Binder is a store scoped by household id.
type Binder interface {
	Bind(householdID string)
}

// FollowHousehold binds every store to the selected household now and on
// every change of selection.
func FollowHousehold(h *HouseholdStore, stores ...Binder) listener.Token {
	return h.CurrentID().Subscribe(func(id string) {
		for _, s := range stores {
			s.Bind(id)
		}
	})
}
