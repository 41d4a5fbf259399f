// Package firestore implements the remote services on Cloud Firestore. Live
// updates come from query snapshot listeners; each Observe call owns one
// listener goroutine that stops when its token is cancelled.
//
// Layout:
//
//	households/{id}                      name, inviteCode, members[]
//	households/{id}/tags/{id}
//	households/{id}/choreTemplates/{id}
//	households/{id}/tasks/{id}
//	households/{id}/rewards/{id}
//	households/{id}/rewardRedemptions/{id}
//	users/{uid}                          profile
package firestore

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/dukerupert/chorely/internal/service"
)

const (
	householdsCollection  = "households"
	usersCollection       = "users"
	tagsCollection        = "tags"
	templatesCollection   = "choreTemplates"
	tasksCollection       = "tasks"
	rewardsCollection     = "rewards"
	redemptionsCollection = "rewardRedemptions"
)

// NewApp initializes the Firebase app shared by Firestore and auth.
func NewApp(ctx context.Context, projectID, credentialsPath string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return app, nil
}

// Open returns the Firestore client for app.
func Open(ctx context.Context, app *firebase.App) (*firestore.Client, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("get firestore client: %w", err)
	}
	return client, nil
}

// Store implements every data service on one Firestore client.
type Store struct {
	client *firestore.Client
	logger *slog.Logger
}

var (
	_ service.HouseholdService     = (*Store)(nil)
	_ service.ProfileService       = (*Store)(nil)
	_ service.TagService           = (*Store)(nil)
	_ service.TemplateService      = (*Store)(nil)
	_ service.TaskService          = (*Store)(nil)
	_ service.RewardCatalogService = (*Store)(nil)
	_ service.RewardLedgerService  = (*Store)(nil)
)

func NewStore(client *firestore.Client, logger *slog.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Backend bundles s with the given auth provider and local key-value store.
func (s *Store) Backend(auth service.AuthService, kv service.KeyValueStore) service.Backend {
	return service.Backend{
		Households:  s,
		Profiles:    s,
		Tags:        s,
		Templates:   s,
		Tasks:       s,
		Rewards:     s,
		Redemptions: s,
		Auth:        auth,
		Settings:    kv,
	}
}

func (s *Store) household(id string) *firestore.DocumentRef {
	return s.client.Collection(householdsCollection).Doc(id)
}

func (s *Store) sub(householdID, name string) *firestore.CollectionRef {
	return s.household(householdID).Collection(name)
}
