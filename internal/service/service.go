// Package service defines the remote collaborators the sync layer is built on.
// Every Observe method replays the current state to the new handler before
// pushing subsequent changes, and returns a token that detaches the handler.
// Mutations either land remotely or fail; nothing is retried here.
package service

import (
	"context"

	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
)

// Handler receives a snapshot or the error that prevented one.
type Handler[T any] func(T, error)

type HouseholdService interface {
	// ObserveHouseholds streams the households userID belongs to.
	ObserveHouseholds(userID string, h Handler[[]model.HouseholdSummary]) listener.Token
	CreateHousehold(ctx context.Context, name, userID string) (model.HouseholdSummary, error)
	RenameHousehold(ctx context.Context, householdID, name string) error
	RefreshInviteCode(ctx context.Context, householdID string) (string, error)
	// JoinHousehold looks up the household whose invite code equals code and
	// adds userID to its members. The lookup and the update are not atomic.
	JoinHousehold(ctx context.Context, code, userID string) (model.HouseholdSummary, error)
	LeaveHousehold(ctx context.Context, householdID, userID string) error
	DeleteHousehold(ctx context.Context, householdID string) error
}

type ProfileService interface {
	// FetchProfile returns nil and no error when the user has no profile.
	FetchProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	SaveProfile(ctx context.Context, p model.UserProfile) error
	SetPoints(ctx context.Context, userID string, points int) error
	ObserveProfile(userID string, h Handler[*model.UserProfile]) listener.Token
	// ObserveMembers streams the profiles of every member of householdID.
	ObserveMembers(householdID string, h Handler[[]model.UserProfile]) listener.Token
}

type TagService interface {
	ObserveTags(householdID string, h Handler[[]model.TagItem]) listener.Token
	CreateTag(ctx context.Context, householdID string, tag model.TagItem) (model.TagItem, error)
	UpdateTag(ctx context.Context, householdID string, tag model.TagItem) error
	DeleteTag(ctx context.Context, householdID, tagID string) error
}

type TemplateService interface {
	ObserveTemplates(householdID string, h Handler[[]model.ChoreTemplate]) listener.Token
	CreateTemplate(ctx context.Context, householdID string, tmpl model.ChoreTemplate) (model.ChoreTemplate, error)
	UpdateTemplate(ctx context.Context, householdID string, tmpl model.ChoreTemplate) error
	DeleteTemplate(ctx context.Context, householdID, templateID string) error
}

type TaskService interface {
	ObserveTasks(householdID string, h Handler[[]model.TaskItem]) listener.Token
	CreateTask(ctx context.Context, householdID string, task model.TaskItem) (model.TaskItem, error)
	// UpdateTask writes only the fields present in patch.
	UpdateTask(ctx context.Context, householdID, taskID string, patch model.TaskPatch) error
	DeleteTask(ctx context.Context, householdID, taskID string) error
}

type RewardCatalogService interface {
	ObserveRewards(householdID string, h Handler[[]model.RewardItem]) listener.Token
	CreateReward(ctx context.Context, householdID string, r model.RewardItem) (model.RewardItem, error)
	UpdateReward(ctx context.Context, householdID string, r model.RewardItem) error
	DeleteReward(ctx context.Context, householdID, rewardID string) error
}

type RewardLedgerService interface {
	// ObserveRedemptions streams the ledger newest first.
	ObserveRedemptions(householdID string, h Handler[[]model.RewardRedemption]) listener.Token
	Redeem(ctx context.Context, householdID string, r model.RewardRedemption) (model.RewardRedemption, error)
}

type AuthService interface {
	// AddStateListener delivers the current session (nil when signed out)
	// immediately and again on every sign-in, sign-out or refresh.
	AddStateListener(fn func(*model.Session)) listener.Token
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password, displayName string) error
	SignOut(ctx context.Context) error
	UpdateDisplayName(ctx context.Context, name string) error
	// RefreshCurrentSession re-fetches the signed-in user. Refresh errors are
	// ignored and the last known session is returned.
	RefreshCurrentSession(ctx context.Context) *model.Session
}

// KeyValueStore is local persistence for small cached values.
type KeyValueStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// Keys used in the KeyValueStore.
const (
	KeySelectedHouseholdID   = "selectedHouseholdID"
	KeySelectedHouseholdName = "selectedHouseholdName"
	KeyLanguageOverride      = "languageOverride"
)

// MemberIDKey is the key caching the member id assigned to userID.
func MemberIDKey(userID string) string {
	return "memberId." + userID
}

// Backend bundles one implementation of every service.
type Backend struct {
	Households  HouseholdService
	Profiles    ProfileService
	Tags        TagService
	Templates   TemplateService
	Tasks       TaskService
	Rewards     RewardCatalogService
	Redemptions RewardLedgerService
	Auth        AuthService
	Settings    KeyValueStore
}
