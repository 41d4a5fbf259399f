package state

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/observable"
	"github.com/dukerupert/chorely/internal/service"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

// AuthStore bridges the authentication session stream to the user's
// persisted profile and household identity.
type AuthStore struct {
	auth     service.AuthService
	profiles service.ProfileService
	kv       service.KeyValueStore
	dispatch mainloop.Dispatcher
	logger   *slog.Logger

	session     *observable.Value[*model.Session]
	profile     *observable.Value[*model.UserProfile]
	member      *observable.Value[*model.HouseholdMember]
	loading     *observable.Value[bool]
	initialized *observable.Value[bool]
	errs        *observable.Value[error]

	mu         sync.Mutex
	loadID     uint64
	sessionTok listener.Token
	profileTok listener.Token
	pending    sync.WaitGroup
}

func NewAuthStore(auth service.AuthService, profiles service.ProfileService, kv service.KeyValueStore, dispatch mainloop.Dispatcher, logger *slog.Logger) *AuthStore {
	return &AuthStore{
		auth:        auth,
		profiles:    profiles,
		kv:          kv,
		dispatch:    dispatch,
		logger:      logger,
		session:     observable.NewValue[*model.Session](nil),
		profile:     observable.NewValue[*model.UserProfile](nil),
		member:      observable.NewValue[*model.HouseholdMember](nil),
		loading:     observable.NewValue(true),
		initialized: observable.NewValue(false),
		errs:        observable.NewValue[error](nil),
	}
}

// Start begins listening to the authentication provider.
func (a *AuthStore) Start() {
	tok := a.auth.AddStateListener(func(s *model.Session) {
		a.dispatch.Post(func() { a.handleSession(s) })
	})
	a.mu.Lock()
	a.sessionTok = tok
	a.mu.Unlock()
}

func (a *AuthStore) Session() observable.Observable[*model.Session]        { return a.session }
func (a *AuthStore) Profile() observable.Observable[*model.UserProfile]    { return a.profile }
func (a *AuthStore) Member() observable.Observable[*model.HouseholdMember] { return a.member }
func (a *AuthStore) Loading() observable.Observable[bool]                  { return a.loading }
func (a *AuthStore) LastError() observable.Observable[error]               { return a.errs }

// Initialized reports whether the first session delivered by the provider
// has been fully processed.
func (a *AuthStore) Initialized() observable.Observable[bool] { return a.initialized }

// CurrentMember returns a copy of the signed-in member, or nil.
func (a *AuthStore) CurrentMember() *model.HouseholdMember {
	m := a.member.Get()
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// Wait blocks until every in-flight profile load has finished.
func (a *AuthStore) Wait() {
	a.pending.Wait()
}

func (a *AuthStore) fail(err error) error {
	a.errs.Set(err)
	return err
}

// handleSession runs on the main context for every session change.
func (a *AuthStore) handleSession(s *model.Session) {
	a.mu.Lock()
	a.loadID++
	id := a.loadID
	oldProfileTok := a.profileTok
	a.profileTok = nil
	a.mu.Unlock()

	if oldProfileTok != nil {
		oldProfileTok.Cancel()
	}

	a.session.Set(s)
	if s == nil {
		a.logger.Info("signed out")
		a.profile.Set(nil)
		a.member.Set(nil)
		a.loading.Set(false)
		a.initialized.Set(true)
		return
	}

	a.logger.Info("session changed", "user_id", s.UserID, "load_id", id)
	a.loading.Set(true)
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		p, err := a.loadProfile(context.Background(), *s)
		a.dispatch.Post(func() { a.applyProfile(id, *s, p, err) })
	}()
}

// memberIDFor returns the cached member id for userID, minting one if none
// is cached yet.
func (a *AuthStore) memberIDFor(userID string) string {
	if id, ok := a.kv.Get(service.MemberIDKey(userID)); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// loadProfile fetches the profile for s, creating or healing it as needed.
func (a *AuthStore) loadProfile(ctx context.Context, s model.Session) (model.UserProfile, error) {
	existing, err := a.profiles.FetchProfile(ctx, s.UserID)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("fetch profile: %w", err)
	}

	if existing == nil {
		p := model.DefaultProfile(s, a.memberIDFor(s.UserID))
		if err := a.profiles.SaveProfile(ctx, p); err != nil {
			return model.UserProfile{}, fmt.Errorf("create profile: %w", err)
		}
		a.logger.Info("profile created", "user_id", s.UserID, "member_id", p.MemberID)
		return p, nil
	}

	existing.ID = s.UserID
	patch := model.ReconcileProfile(*existing, s, a.memberIDFor(s.UserID))
	if !patch.Needed {
		return patch.Profile, nil
	}
	if err := a.profiles.SaveProfile(ctx, patch.Profile); err != nil {
		return model.UserProfile{}, fmt.Errorf("patch profile: %w", err)
	}
	a.logger.Info("profile patched", "user_id", s.UserID, "fields", patch.Fields)
	return patch.Profile, nil
}

func (a *AuthStore) current(id uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadID == id
}

func (a *AuthStore) applyProfile(id uint64, s model.Session, p model.UserProfile, err error) {
	if !a.current(id) {
		a.logger.Debug("discarding stale profile load", "user_id", s.UserID, "load_id", id)
		return
	}
	defer a.initialized.Set(true)
	defer a.loading.Set(false)

	if err != nil {
		a.logger.Warn("profile load failed", "user_id", s.UserID, "error", err)
		a.errs.Set(err)
		return
	}

	if err := a.kv.Set(service.MemberIDKey(s.UserID), p.MemberID); err != nil {
		a.logger.Warn("cache member id", "error", err)
	}
	a.setProfile(p)

	tok := a.profiles.ObserveProfile(s.UserID, func(live *model.UserProfile, err error) {
		a.dispatch.Post(func() { a.applyLiveProfile(id, live, err) })
	})
	a.mu.Lock()
	if a.loadID != id {
		a.mu.Unlock()
		tok.Cancel()
		return
	}
	a.profileTok = tok
	a.mu.Unlock()
}

// applyLiveProfile merges remote profile changes such as points awarded on
// another device.
func (a *AuthStore) applyLiveProfile(id uint64, live *model.UserProfile, err error) {
	if !a.current(id) {
		return
	}
	if err != nil {
		a.logger.Warn("profile listener failed", "error", err)
		a.errs.Set(err)
		return
	}
	if live == nil || live.MemberID == "" {
		return
	}
	p := *live
	if cur := a.profile.Get(); cur != nil {
		p.ID = cur.ID
		if p == *cur {
			return
		}
	}
	a.setProfile(p)
}

func (a *AuthStore) setProfile(p model.UserProfile) {
	m := model.MemberFromProfile(p)
	a.profile.Set(&p)
	a.member.Set(&m)
}

func (a *AuthStore) activeProfile() (model.UserProfile, error) {
	if a.session.Get() == nil {
		return model.UserProfile{}, apperror.MissingScope("user")
	}
	p := a.profile.Get()
	if p == nil {
		return model.UserProfile{}, apperror.MissingScope("profile")
	}
	return *p, nil
}

// AdjustPoints changes the stored point counter by delta, never below zero.
func (a *AuthStore) AdjustPoints(ctx context.Context, delta int) (int, error) {
	p, err := a.activeProfile()
	if err != nil {
		return 0, a.fail(err)
	}

	next := model.ClampPoints(p.Points, delta)
	if err := a.profiles.SetPoints(ctx, p.ID, next); err != nil {
		return p.Points, a.fail(fmt.Errorf("adjust points: %w", err))
	}

	a.dispatch.Post(func() {
		cur := a.profile.Get()
		if cur == nil || cur.ID != p.ID {
			return
		}
		updated := *cur
		if next > updated.Points {
			updated.LifetimePoints += next - updated.Points
		}
		updated.Points = next
		a.setProfile(updated)
	})
	return next, nil
}

// UpdateProfile changes the display name and accent color. The provider's
// display name is updated on a best-effort basis.
func (a *AuthStore) UpdateProfile(ctx context.Context, name, accentColor string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return a.fail(apperror.ValidationFailed("name", "name is required"))
	}
	p, err := a.activeProfile()
	if err != nil {
		return a.fail(err)
	}

	p.Name = name
	if accentColor != "" {
		p.AccentColor = accentColor
	}
	if err := a.profiles.SaveProfile(ctx, p); err != nil {
		return a.fail(fmt.Errorf("update profile: %w", err))
	}
	a.dispatch.Post(func() {
		if cur := a.profile.Get(); cur != nil && cur.ID == p.ID {
			a.setProfile(p)
		}
	})

	if err := a.auth.UpdateDisplayName(ctx, name); err != nil {
		a.logger.Debug("update provider display name", "error", err)
	}
	return nil
}

func (a *AuthStore) SignIn(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return a.fail(apperror.ValidationFailed("email", "email and password are required"))
	}
	if err := a.auth.SignIn(ctx, email, password); err != nil {
		return a.fail(fmt.Errorf("sign in: %w", err))
	}
	return nil
}

func (a *AuthStore) SignUp(ctx context.Context, email, password, displayName string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return a.fail(apperror.ValidationFailed("email", "email is required"))
	}
	if len(password) < MinPasswordLength {
		return a.fail(apperror.ValidationFailed("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength)))
	}
	if err := a.auth.SignUp(ctx, email, password, strings.TrimSpace(displayName)); err != nil {
		return a.fail(fmt.Errorf("sign up: %w", err))
	}
	return nil
}

func (a *AuthStore) SignOut(ctx context.Context) error {
	if err := a.auth.SignOut(ctx); err != nil {
		return a.fail(fmt.Errorf("sign out: %w", err))
	}
	return nil
}

// RefreshSession re-reads the provider's current session and reloads the
// profile if anything changed.
func (a *AuthStore) RefreshSession(ctx context.Context) *model.Session {
	s := a.auth.RefreshCurrentSession(ctx)
	cur := a.session.Get()
	changed := (s == nil) != (cur == nil) || (s != nil && *s != *cur)
	if changed {
		a.dispatch.Post(func() { a.handleSession(s) })
	}
	return s
}

func (a *AuthStore) Close() {
	a.mu.Lock()
	a.loadID++
	tokens := []listener.Token{a.sessionTok, a.profileTok}
	a.sessionTok = nil
	a.profileTok = nil
	a.mu.Unlock()

	for _, t := range tokens {
		if t != nil {
			t.Cancel()
		}
	}
}
