package firestore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"cloud.google.com/go/firestore"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

// maxInFilter is the largest value list Firestore accepts for an "in" filter.
const maxInFilter = 30

func setProfileID(p *model.UserProfile, id string) { p.ID = id }

func (s *Store) user(userID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID)
}

func (s *Store) FetchProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	snap, err := s.user(userID).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p, err := decode(snap, setProfileID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p model.UserProfile) error {
	if p.ID == "" {
		return apperror.ValidationFailed("id", "profile has no user id")
	}
	if _, err := s.user(p.ID).Set(ctx, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// SetPoints replaces the balance in a transaction so the lifetime total grows
// by exactly the increase.
func (s *Store) SetPoints(ctx context.Context, userID string, points int) error {
	ref := s.user(userID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return apperror.NotFound("profile", userID)
		}
		if err != nil {
			return err
		}
		p, err := decode(snap, setProfileID)
		if err != nil {
			return err
		}
		lifetime := p.LifetimePoints
		if points > p.Points {
			lifetime += points - p.Points
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "points", Value: points},
			{Path: "lifetimePoints", Value: lifetime},
		})
	})
	if err != nil {
		return fmt.Errorf("set points: %w", err)
	}
	return nil
}

func (s *Store) ObserveProfile(userID string, h service.Handler[*model.UserProfile]) listener.Token {
	return watchDoc(s.logger, s.user(userID), setProfileID, h)
}

func sortProfiles(list []model.UserProfile) {
	slices.SortStableFunc(list, func(a, b model.UserProfile) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
}

// ObserveMembers follows the household's member list and, for each version of
// it, the profiles of those members. The profile listener is replaced
// whenever membership changes.
func (s *Store) ObserveMembers(householdID string, h service.Handler[[]model.UserProfile]) listener.Token {
	var mu sync.Mutex
	var inner listener.Token = listener.Nop()
	var members []string
	closed := false

	outer := watchDoc(s.logger, s.household(householdID), setHouseholdDocID, func(doc *householdDoc, err error) {
		if err != nil {
			h(nil, err)
			return
		}
		var next []string
		if doc != nil {
			next = slices.Clone(doc.Members)
			slices.Sort(next)
		}

		mu.Lock()
		defer mu.Unlock()
		if closed || slices.Equal(next, members) && members != nil {
			return
		}
		members = next
		inner.Cancel()
		inner = s.watchProfiles(next, h)
	})

	return listener.Func(func() {
		outer.Cancel()
		mu.Lock()
		closed = true
		inner.Cancel()
		mu.Unlock()
	})
}

func (s *Store) watchProfiles(userIDs []string, h service.Handler[[]model.UserProfile]) listener.Token {
	if len(userIDs) == 0 {
		h([]model.UserProfile{}, nil)
		return listener.Nop()
	}
	if len(userIDs) > maxInFilter {
		s.logger.Warn("household has more members than one listener can follow", "members", len(userIDs), "limit", maxInFilter)
		userIDs = userIDs[:maxInFilter]
	}
	refs := make([]*firestore.DocumentRef, 0, len(userIDs))
	for _, id := range userIDs {
		refs = append(refs, s.user(id))
	}
	q := s.client.Collection(usersCollection).Where(firestore.DocumentID, "in", refs)
	return watchQuery(s.logger, q, setProfileID, sortProfiles, h)
}
