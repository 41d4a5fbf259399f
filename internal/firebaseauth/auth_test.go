package firebaseauth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/go-resty/resty/v2"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

type fakeAdmin struct {
	users     map[string]*auth.UserRecord
	tokens    map[string]string
	getErr    error
	updatedTo string
}

func (f *fakeAdmin) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	uid, ok := f.tokens[idToken]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &auth.Token{UID: uid}, nil
}

func (f *fakeAdmin) GetUser(_ context.Context, uid string) (*auth.UserRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[uid]
	if !ok {
		return nil, errors.New("no user")
	}
	return u, nil
}

func (f *fakeAdmin) CreateUser(context.Context, *auth.UserToCreate) (*auth.UserRecord, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdmin) UpdateUser(_ context.Context, uid string, _ *auth.UserToUpdate) (*auth.UserRecord, error) {
	f.updatedTo = uid
	return f.users[uid], nil
}

func record(uid, name, email string) *auth.UserRecord {
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: uid, DisplayName: name, Email: email}}
}

// identityToolkit accepts alice@example.com / secret1 and rejects the rest.
func identityToolkit(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts:signInWithPassword" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("key") != "test-key" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"API_KEY_INVALID"}}`))
			return
		}
		var req signInRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Email != "alice@example.com" || req.Password != "secret1" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`))
			return
		}
		w.Write([]byte(`{"idToken":"tok-alice","localId":"u-alice","email":"alice@example.com"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, admin *fakeAdmin, key string) *Provider {
	t.Helper()
	srv := identityToolkit(t)
	return NewProvider(admin, resty.New(), key, srv.URL, slog.Default())
}

func TestSignInSuccess(t *testing.T) {
	admin := &fakeAdmin{
		users:  map[string]*auth.UserRecord{"u-alice": record("u-alice", "Alice", "alice@example.com")},
		tokens: map[string]string{"tok-alice": "u-alice"},
	}
	p := newTestProvider(t, admin, "test-key")

	var seen []*model.Session
	tok := p.AddStateListener(func(s *model.Session) { seen = append(seen, s) })
	defer tok.Cancel()

	if err := p.SignIn(context.Background(), "alice@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if len(seen) != 2 || seen[0] != nil {
		t.Fatalf("notifications = %v, want [nil, alice]", seen)
	}
	if seen[1].UserID != "u-alice" || seen[1].DisplayName != "Alice" {
		t.Errorf("session = %+v, want u-alice/Alice", seen[1])
	}
}

func TestSignInWrongPassword(t *testing.T) {
	p := newTestProvider(t, &fakeAdmin{}, "test-key")

	err := p.SignIn(context.Background(), "alice@example.com", "nope")
	if !errors.Is(err, apperror.ErrAuthorization) {
		t.Errorf("err = %v, want authorization error", err)
	}
}

func TestSignInOtherAPIError(t *testing.T) {
	p := newTestProvider(t, &fakeAdmin{}, "wrong-key")

	err := p.SignIn(context.Background(), "alice@example.com", "secret1")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperror.IsLocal(err) {
		t.Errorf("err = %v, want remote error", err)
	}
}

func TestRefreshKeepsLastSessionOnError(t *testing.T) {
	admin := &fakeAdmin{
		users:  map[string]*auth.UserRecord{"u-alice": record("u-alice", "Alice", "alice@example.com")},
		tokens: map[string]string{"tok-alice": "u-alice"},
	}
	p := newTestProvider(t, admin, "test-key")
	ctx := context.Background()

	if p.RefreshCurrentSession(ctx) != nil {
		t.Error("expected nil when signed out")
	}
	if err := p.SignIn(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	admin.getErr = errors.New("unavailable")
	got := p.RefreshCurrentSession(ctx)
	if got == nil || got.UserID != "u-alice" {
		t.Errorf("session = %+v, want u-alice", got)
	}
}

func TestRefreshKeepsLastSessionOnEmptyRecord(t *testing.T) {
	admin := &fakeAdmin{
		users:  map[string]*auth.UserRecord{"u-alice": record("u-alice", "Alice", "alice@example.com")},
		tokens: map[string]string{"tok-alice": "u-alice"},
	}
	p := newTestProvider(t, admin, "test-key")
	ctx := context.Background()
	if err := p.SignIn(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	admin.users["u-alice"] = &auth.UserRecord{}
	got := p.RefreshCurrentSession(ctx)
	if got == nil || got.UserID != "u-alice" || got.DisplayName != "Alice" {
		t.Errorf("session = %+v, want last known u-alice/Alice", got)
	}
}

func TestUpdateDisplayName(t *testing.T) {
	admin := &fakeAdmin{
		users:  map[string]*auth.UserRecord{"u-alice": record("u-alice", "Alice", "alice@example.com")},
		tokens: map[string]string{"tok-alice": "u-alice"},
	}
	p := newTestProvider(t, admin, "test-key")
	ctx := context.Background()

	if err := p.UpdateDisplayName(ctx, "Ali"); !errors.Is(err, apperror.ErrMissingScope) {
		t.Errorf("signed out: err = %v, want missing scope", err)
	}

	p.SignIn(ctx, "alice@example.com", "secret1")
	if err := p.UpdateDisplayName(ctx, "Ali"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if admin.updatedTo != "u-alice" {
		t.Errorf("updated uid = %q, want u-alice", admin.updatedTo)
	}

	p.SignOut(ctx)
	if p.RefreshCurrentSession(ctx) != nil {
		t.Error("expected nil after sign out")
	}
}
