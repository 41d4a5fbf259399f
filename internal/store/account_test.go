package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

func setupAccountTestDB(t *testing.T) *AccountStore {
	t.Helper()
	db, _ := setupTestDB(t)
	return NewAccountStore(db, slog.Default())
}

func TestAccountSignUpAndSignIn(t *testing.T) {
	as := setupAccountTestDB(t)
	ctx := context.Background()

	var seen []*model.Session
	tok := as.AddStateListener(func(s *model.Session) { seen = append(seen, s) })
	defer tok.Cancel()

	if err := as.SignUp(ctx, "alice@example.com", "secret1", "Alice"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	cur := as.RefreshCurrentSession(ctx)
	if cur == nil || cur.DisplayName != "Alice" {
		t.Fatalf("session = %+v, want Alice", cur)
	}

	if err := as.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if as.RefreshCurrentSession(ctx) != nil {
		t.Error("expected nil session after sign out")
	}

	if err := as.SignIn(ctx, "ALICE@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	// replay nil, sign up, sign out, sign in
	if len(seen) != 4 {
		t.Fatalf("notifications = %d, want 4", len(seen))
	}
	if seen[0] != nil || seen[2] != nil {
		t.Errorf("expected nil sessions at 0 and 2, got %+v %+v", seen[0], seen[2])
	}
	if seen[3] == nil || seen[3].UserID != cur.UserID {
		t.Errorf("signed in as %+v, want %s", seen[3], cur.UserID)
	}
}

func TestAccountSignInWrongPassword(t *testing.T) {
	as := setupAccountTestDB(t)
	ctx := context.Background()
	as.SignUp(ctx, "alice@example.com", "secret1", "Alice")
	as.SignOut(ctx)

	for _, tc := range []struct{ email, password string }{
		{"alice@example.com", "wrong"},
		{"bob@example.com", "secret1"},
	} {
		err := as.SignIn(ctx, tc.email, tc.password)
		if !errors.Is(err, apperror.ErrAuthorization) {
			t.Errorf("sign in %s: err = %v, want authorization error", tc.email, err)
		}
	}
}

func TestAccountDuplicateEmail(t *testing.T) {
	as := setupAccountTestDB(t)
	ctx := context.Background()
	as.SignUp(ctx, "alice@example.com", "secret1", "Alice")

	err := as.SignUp(ctx, "Alice@Example.com", "secret2", "Other")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestAccountRestore(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	first := NewAccountStore(db, slog.Default())
	if err := first.SignUp(ctx, "alice@example.com", "secret1", "Alice"); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	second := NewAccountStore(db, slog.Default())
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	cur := second.RefreshCurrentSession(ctx)
	if cur == nil || cur.Email != "alice@example.com" {
		t.Fatalf("restored = %+v, want alice", cur)
	}

	expired := NewAccountStore(db, slog.Default())
	expired.Now = func() time.Time { return time.Now().Add(SessionTTL + time.Hour) }
	if err := expired.Restore(ctx); err != nil {
		t.Fatalf("restore expired: %v", err)
	}
	if expired.RefreshCurrentSession(ctx) != nil {
		t.Error("expected no session once expired")
	}
}

func TestAccountUpdateDisplayName(t *testing.T) {
	as := setupAccountTestDB(t)
	ctx := context.Background()

	if err := as.UpdateDisplayName(ctx, "x"); !errors.Is(err, apperror.ErrMissingScope) {
		t.Errorf("signed out: err = %v, want missing scope", err)
	}

	as.SignUp(ctx, "alice@example.com", "secret1", "Alice")
	if err := as.UpdateDisplayName(ctx, "Ali"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if cur := as.RefreshCurrentSession(ctx); cur.DisplayName != "Ali" {
		t.Errorf("display name = %q, want Ali", cur.DisplayName)
	}
}
