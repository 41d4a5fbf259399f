package store

import (
	"database/sql"
	"log/slog"

	"github.com/dukerupert/chorely/internal/changefeed"
	"github.com/dukerupert/chorely/internal/service"
)

// NewBackend wires every SQLite service around db. The returned AccountStore
// is the same value as Backend.Auth, exposed for Restore.
func NewBackend(db *sql.DB, feed *changefeed.Hub, logger *slog.Logger) (service.Backend, *AccountStore) {
	rewards := NewRewardStore(db, feed)
	accounts := NewAccountStore(db, logger.With("component", "accounts"))
	return service.Backend{
		Households:  NewHouseholdStore(db, feed),
		Profiles:    NewProfileStore(db, feed),
		Tags:        NewTagStore(db, feed),
		Templates:   NewTemplateStore(db, feed),
		Tasks:       NewTaskStore(db, feed),
		Rewards:     rewards,
		Redemptions: rewards,
		Auth:        accounts,
		Settings:    NewSettingsStore(db),
	}, accounts
}
