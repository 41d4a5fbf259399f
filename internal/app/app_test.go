package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/chorely/internal/config"
	"github.com/dukerupert/chorely/internal/invite"
	"github.com/dukerupert/chorely/internal/service/memory"
	"github.com/dukerupert/chorely/internal/viewmodel"
)

var now = time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC)

func newSeededApp(t *testing.T) *App {
	t.Helper()
	ctx := context.Background()
	backend := memory.New().Backend(memory.NewAuth(), memory.NewKV())
	if _, err := Seed(ctx, backend, now); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	a := NewWithBackend(backend, invite.NewQRRenderer(128, "M"), now, slog.Default())
	a.Start(ctx)
	t.Cleanup(func() { a.Close() })
	settle(t, a)
	return a
}

func settle(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Settle(ctx); err != nil {
		t.Fatalf("Settle: %v", err)
	}
}

func TestSeededAppReachesDashboard(t *testing.T) {
	a := newSeededApp(t)

	if got := a.Presentation.State().Get(); got != viewmodel.Dashboard {
		t.Fatalf("presentation = %v, want %v", got, viewmodel.Dashboard)
	}
	h, ok := a.Households.Current()
	if !ok || h.Name != "Maple Street" {
		t.Fatalf("current household = %+v (%v), want Maple Street", h, ok)
	}
	if got := a.Board.State().Get().Total; got != len(demoTemplates)+1 {
		t.Errorf("board total = %d, want %d", got, len(demoTemplates)+1)
	}
	if got := len(a.Tags.Tags().Get().Items); got != len(demoTags) {
		t.Errorf("tags = %d, want %d", got, len(demoTags))
	}
	if got := len(a.Members.Members().Get().Items); got != 3 {
		t.Errorf("members = %d, want 3", got)
	}
	rewards := a.RewardsView.State().Get()
	if got := len(rewards.Leaderboard); got != 3 {
		t.Errorf("leaderboard entries = %d, want 3", got)
	}
	// Alex completed the first seeded task.
	if rewards.LifetimePoints != demoTemplates[0].BaseScore {
		t.Errorf("lifetime points = %d, want %d", rewards.LifetimePoints, demoTemplates[0].BaseScore)
	}
}

func TestSignOutReturnsToAuthentication(t *testing.T) {
	a := newSeededApp(t)

	if err := a.Auth.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	settle(t, a)

	if got := a.Presentation.State().Get(); got != viewmodel.Authentication {
		t.Errorf("presentation = %v, want %v", got, viewmodel.Authentication)
	}
	if got := len(a.Tasks.Tasks().Get().Items); got != 0 {
		t.Errorf("tasks after sign-out = %d, want 0", got)
	}
}

func TestNewUserNeedsHousehold(t *testing.T) {
	ctx := context.Background()
	a := NewWithBackend(memory.New().Backend(memory.NewAuth(), memory.NewKV()), invite.NewQRRenderer(128, "M"), now, slog.Default())
	a.Start(ctx)
	defer a.Close()
	settle(t, a)

	if got := a.Presentation.State().Get(); got != viewmodel.Authentication {
		t.Fatalf("presentation = %v, want %v", got, viewmodel.Authentication)
	}

	if err := a.Auth.SignUp(ctx, "new@example.com", "secret1", "Nova"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	settle(t, a)
	if got := a.Presentation.State().Get(); got != viewmodel.NeedsHousehold {
		t.Fatalf("presentation = %v, want %v", got, viewmodel.NeedsHousehold)
	}

	if _, err := a.Households.Create(ctx, "Studio"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	settle(t, a)
	if got := a.Presentation.State().Get(); got != viewmodel.Dashboard {
		t.Errorf("presentation = %v, want %v", got, viewmodel.Dashboard)
	}
}

func TestNewMemoryBackendFromConfig(t *testing.T) {
	cfg := &config.Config{
		Backend: config.BackendMemory,
		QRCode:  config.QRCodeConfig{Size: 128, Level: "M"},
		Demo:    config.DemoConfig{Seed: true},
	}
	a, err := New(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if s := a.Backend.Auth.RefreshCurrentSession(context.Background()); s == nil || s.Email != DemoEmail {
		t.Errorf("session = %+v, want demo account", s)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), &config.Config{Backend: "carrier-pigeon"}, slog.Default())
	if err == nil {
		t.Fatal("New succeeded with an unknown backend")
	}
}
