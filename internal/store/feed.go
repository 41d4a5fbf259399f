// Package store implements the remote services on top of SQLite. Every write
// publishes a change on the feed hub, and every Observe call re-reads its
// query whenever a matching change arrives.
package store

import (
	"context"

	"github.com/dukerupert/chorely/internal/changefeed"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/service"
)

// Entities published on the change feed.
const (
	EntityHouseholds  = "households"
	EntityMembers     = "members"
	EntityProfile     = "profile"
	EntityTags        = "tags"
	EntityTemplates   = "templates"
	EntityTasks       = "tasks"
	EntityRewards     = "rewards"
	EntityRedemptions = "redemptions"
)

// householdScoped lists the entities whose rows belong to one household.
var householdScoped = []string{EntityMembers, EntityTags, EntityTemplates, EntityTasks, EntityRewards, EntityRedemptions}

func observe[T any](feed *changefeed.Hub, entity, scope string, h service.Handler[T], load func(context.Context) (T, error)) listener.Token {
	return feed.Subscribe(entity, scope, func(deliver func(func())) {
		v, err := load(context.Background())
		deliver(func() { h(v, err) })
	})
}
