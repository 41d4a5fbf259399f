package firestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/invite"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

// householdDoc is the stored form of a household. Members holds auth user ids.
type householdDoc struct {
	ID         string   `firestore:"-"`
	Name       string   `firestore:"name"`
	InviteCode string   `firestore:"inviteCode"`
	Members    []string `firestore:"members"`
}

func (d householdDoc) summary() model.HouseholdSummary {
	return model.HouseholdSummary{ID: d.ID, Name: d.Name, InviteCode: d.InviteCode}
}

func setHouseholdDocID(d *householdDoc, id string) { d.ID = id }

func sortSummaries(list []model.HouseholdSummary) {
	slices.SortStableFunc(list, func(a, b model.HouseholdSummary) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
}

func (s *Store) ObserveHouseholds(userID string, h service.Handler[[]model.HouseholdSummary]) listener.Token {
	q := s.client.Collection(householdsCollection).Where("members", "array-contains", userID)
	return watchQuery(s.logger, q, setHouseholdDocID, nil, func(docs []householdDoc, err error) {
		if err != nil {
			h(nil, err)
			return
		}
		list := make([]model.HouseholdSummary, 0, len(docs))
		for _, d := range docs {
			list = append(list, d.summary())
		}
		sortSummaries(list)
		h(list, nil)
	})
}

func (s *Store) CreateHousehold(ctx context.Context, name, userID string) (model.HouseholdSummary, error) {
	ref := s.client.Collection(householdsCollection).NewDoc()
	doc := householdDoc{ID: ref.ID, Name: name, InviteCode: invite.NewCode(), Members: []string{userID}}
	if _, err := ref.Set(ctx, doc); err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("create household: %w", err)
	}
	return doc.summary(), nil
}

func (s *Store) updateHousehold(ctx context.Context, householdID string, updates []firestore.Update) error {
	_, err := s.household(householdID).Update(ctx, updates)
	if isNotFound(err) {
		return apperror.NotFound("household", householdID)
	}
	return err
}

func (s *Store) RenameHousehold(ctx context.Context, householdID, name string) error {
	if err := s.updateHousehold(ctx, householdID, []firestore.Update{{Path: "name", Value: name}}); err != nil {
		return fmt.Errorf("rename household: %w", err)
	}
	return nil
}

func (s *Store) RefreshInviteCode(ctx context.Context, householdID string) (string, error) {
	code := invite.NewCode()
	if err := s.updateHousehold(ctx, householdID, []firestore.Update{{Path: "inviteCode", Value: code}}); err != nil {
		return "", fmt.Errorf("refresh invite code: %w", err)
	}
	return code, nil
}

// JoinHousehold finds the household by invite code, then adds userID to its
// members with an array union. The two steps are not transactional.
func (s *Store) JoinHousehold(ctx context.Context, code, userID string) (model.HouseholdSummary, error) {
	if code == "" {
		return model.HouseholdSummary{}, apperror.NotFound("household", "invite code "+code)
	}
	iter := s.client.Collection(householdsCollection).Where("inviteCode", "==", code).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return model.HouseholdSummary{}, apperror.NotFound("household", "invite code "+code)
	}
	if err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("find household by code: %w", err)
	}
	doc, err := decode(snap, setHouseholdDocID)
	if err != nil {
		return model.HouseholdSummary{}, err
	}

	_, err = snap.Ref.Update(ctx, []firestore.Update{{Path: "members", Value: firestore.ArrayUnion(userID)}})
	if err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("join household: %w", err)
	}
	return doc.summary(), nil
}

func (s *Store) LeaveHousehold(ctx context.Context, householdID, userID string) error {
	err := s.updateHousehold(ctx, householdID, []firestore.Update{{Path: "members", Value: firestore.ArrayRemove(userID)}})
	if err != nil {
		return fmt.Errorf("leave household: %w", err)
	}
	return nil
}

// writeJob is the part of *firestore.BulkWriterJob DeleteHousehold needs.
type writeJob interface {
	Results() (*firestore.WriteResult, error)
}

// firstFailure waits for every job and returns the first error.
func firstFailure(jobs []writeJob) error {
	var first error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DeleteHousehold removes every document in the household's subcollections,
// then the household document. The household stays in place if any
// subcollection delete fails.
func (s *Store) DeleteHousehold(ctx context.Context, householdID string) error {
	bw := s.client.BulkWriter(ctx)
	var jobs []writeJob
	for _, name := range []string{tagsCollection, templatesCollection, tasksCollection, rewardsCollection, redemptionsCollection} {
		refs, err := s.sub(householdID, name).DocumentRefs(ctx).GetAll()
		if err != nil {
			bw.End()
			return fmt.Errorf("list %s: %w", name, err)
		}
		for _, ref := range refs {
			job, err := bw.Delete(ref)
			if err != nil {
				bw.End()
				return fmt.Errorf("delete %s: %w", ref.Path, err)
			}
			jobs = append(jobs, job)
		}
	}
	bw.End()
	if err := firstFailure(jobs); err != nil {
		return fmt.Errorf("delete household contents: %w", err)
	}

	if _, err := s.household(householdID).Delete(ctx); err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return nil
}
