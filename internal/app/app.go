// Package app is the composition root. One App owns the backend services,
// the domain stores and the view models for a single process, and tears all
// of them down together.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dukerupert/chorely/internal/changefeed"
	"github.com/dukerupert/chorely/internal/config"
	"github.com/dukerupert/chorely/internal/database"
	"github.com/dukerupert/chorely/internal/firebaseauth"
	"github.com/dukerupert/chorely/internal/firestore"
	"github.com/dukerupert/chorely/internal/invite"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
	"github.com/dukerupert/chorely/internal/service/memory"
	"github.com/dukerupert/chorely/internal/state"
	"github.com/dukerupert/chorely/internal/store"
	"github.com/dukerupert/chorely/internal/viewmodel"
	"github.com/dukerupert/chorely/internal/websocket"
)

type App struct {
	Backend service.Backend
	Loop    *mainloop.Loop
	Hub     *websocket.Hub

	Auth       *state.AuthStore
	Households *state.HouseholdStore
	Tags       *state.TagStore
	Catalog    *state.ChoreCatalogStore
	Tasks      *state.TaskBoardStore
	Rewards    *state.RewardsStore
	Members    *state.MemberDirectory

	Board        *viewmodel.TaskBoardViewModel
	RewardsView  *viewmodel.RewardsViewModel
	Presentation *viewmodel.PresentationViewModel

	logger  *slog.Logger
	tokens  listener.Bag
	closers []func() error
	stop    context.CancelFunc
}

// New builds the backend selected by cfg.Backend and everything above it.
// Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	backend, err := a.openBackend(ctx, cfg)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.assemble(backend, invite.NewQRRenderer(cfg.QRCode.Size, cfg.QRCode.Level), time.Now())
	return a, nil
}

// NewWithBackend assembles an App over an existing backend.
func NewWithBackend(backend service.Backend, qr *invite.QRRenderer, now time.Time, logger *slog.Logger) *App {
	a := &App{logger: logger}
	a.assemble(backend, qr, now)
	return a
}

func (a *App) openBackend(ctx context.Context, cfg *config.Config) (service.Backend, error) {
	logger := a.logger
	switch cfg.Backend {
	case config.BackendMemory:
		backend := memory.New().Backend(memory.NewAuth(), memory.NewKV())
		if cfg.Demo.Seed {
			if _, err := Seed(ctx, backend, time.Now()); err != nil {
				return service.Backend{}, fmt.Errorf("seed demo data: %w", err)
			}
			logger.Info("demo data seeded", "email", DemoEmail)
		}
		return backend, nil

	case config.BackendSQLite:
		db, err := a.openDatabase(ctx, cfg.SQLite.Path)
		if err != nil {
			return service.Backend{}, err
		}
		feed := changefeed.NewHub(logger.With("component", "changefeed"))
		backend, accounts := store.NewBackend(db, feed, logger)
		if err := accounts.Restore(ctx); err != nil {
			return service.Backend{}, fmt.Errorf("restore session: %w", err)
		}
		return backend, nil

	case config.BackendFirestore:
		fbApp, err := firestore.NewApp(ctx, cfg.Firestore.ProjectID, cfg.Firebase.CredentialsPath)
		if err != nil {
			return service.Backend{}, err
		}
		client, err := firestore.Open(ctx, fbApp)
		if err != nil {
			return service.Backend{}, err
		}
		a.closers = append(a.closers, client.Close)
		admin, err := fbApp.Auth(ctx)
		if err != nil {
			return service.Backend{}, fmt.Errorf("get auth client: %w", err)
		}
		// Selection and member-id caches stay on the device.
		db, err := a.openDatabase(ctx, cfg.SQLite.Path)
		if err != nil {
			return service.Backend{}, err
		}
		provider := firebaseauth.NewProvider(admin, resty.New().SetTimeout(15*time.Second), cfg.Firebase.APIKey, cfg.Firebase.AuthEndpoint, logger.With("component", "firebaseauth"))
		fs := firestore.NewStore(client, logger.With("component", "firestore"))
		return fs.Backend(provider, store.NewSettingsStore(db)), nil
	}
	return service.Backend{}, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func (a *App) openDatabase(ctx context.Context, path string) (*sql.DB, error) {
	db, err := database.OpenContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	return db, nil
}

func (a *App) assemble(backend service.Backend, qr *invite.QRRenderer, now time.Time) {
	logger := a.logger
	a.Backend = backend
	a.Loop = mainloop.New()
	a.Hub = websocket.NewHub(logger.With("component", "websocket"))
	d := a.Loop

	a.Auth = state.NewAuthStore(backend.Auth, backend.Profiles, backend.Settings, d, logger.With("component", "auth"))
	a.Households = state.NewHouseholdStore(backend.Households, backend.Settings, qr, d, logger.With("component", "households"))
	a.Tags = state.NewTagStore(backend.Tags, d, logger.With("component", "tags"))
	a.Catalog = state.NewChoreCatalogStore(backend.Templates, d, logger.With("component", "catalog"))
	a.Tasks = state.NewTaskBoardStore(backend.Tasks, d, logger.With("component", "tasks"))
	a.Rewards = state.NewRewardsStore(backend.Rewards, backend.Redemptions, d, logger.With("component", "rewards"))
	a.Members = state.NewMemberDirectory(backend.Profiles, d, logger.With("component", "members"))

	a.Board = viewmodel.NewTaskBoardViewModel(a.Tasks, a.Auth, a.Members, now, d, logger.With("component", "board"))
	a.RewardsView = viewmodel.NewRewardsViewModel(a.Tasks, a.Rewards, a.Auth, a.Members, d, logger.With("component", "rewards_view"))
	a.Presentation = viewmodel.NewPresentationViewModel(a.Auth, a.Households, logger.With("component", "presentation"))

	a.tokens.Add(a.Auth.Session().Subscribe(func(s *model.Session) {
		if s == nil {
			a.Households.BindUser("")
			return
		}
		a.Households.BindUser(s.UserID)
	}))
	a.tokens.Add(state.FollowHousehold(a.Households, a.Tags, a.Catalog, a.Tasks, a.Rewards, a.Members))
	a.watch()
}

// Start runs the main loop until ctx ends and begins listening for sessions.
func (a *App) Start(ctx context.Context) {
	ctx, a.stop = context.WithCancel(ctx)
	go a.Loop.Run(ctx)
	a.Auth.Start()
	a.logger.Info("app started")
}

// Settle waits until the main loop is idle and no profile load is in
// flight. Callbacks that post further callbacks are followed to the end.
func (a *App) Settle(ctx context.Context) error {
	for {
		if err := mainloop.Flush(ctx, a.Loop); err != nil {
			return err
		}
		a.Auth.Wait()
		if a.Loop.Pending() > 0 {
			continue
		}
		// One more pass covers a callback dequeued but still running.
		if err := mainloop.Flush(ctx, a.Loop); err != nil {
			return err
		}
		if a.Loop.Pending() == 0 {
			return nil
		}
	}
}

// Close cancels every listener, stops the loop and releases backend
// resources.
func (a *App) Close() error {
	a.tokens.CancelAll()
	a.Presentation.Close()
	a.RewardsView.Close()
	a.Board.Close()
	a.Auth.Close()
	a.Households.Close()
	a.Tags.Close()
	a.Catalog.Close()
	a.Tasks.Close()
	a.Rewards.Close()
	a.Members.Close()
	a.Hub.Close()
	if a.stop != nil {
		a.stop()
		<-a.Loop.Done()
	}
	err := a.closeResources()
	a.logger.Info("app closed")
	return err
}

func (a *App) closeResources() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = fmt.Errorf("close backend: %w", err)
		}
	}
	a.closers = nil
	return first
}
