package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

func setTagID(t *model.TagItem, id string)                 { t.ID = id }
func setTemplateID(t *model.ChoreTemplate, id string)      { t.ID = id }
func setTaskID(t *model.TaskItem, id string)               { t.ID = id }
func setRewardID(r *model.RewardItem, id string)           { r.ID = id }
func setRedemptionID(r *model.RewardRedemption, id string) { r.ID = id }

// newRef returns the document for id, or a fresh auto-id document when id is
// empty.
func (s *Store) newRef(householdID, collection, id string) *firestore.DocumentRef {
	if id == "" {
		return s.sub(householdID, collection).NewDoc()
	}
	return s.sub(householdID, collection).Doc(id)
}

func (s *Store) deleteDoc(ctx context.Context, householdID, collection, resource, id string) error {
	if _, err := s.sub(householdID, collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", resource, err)
	}
	return nil
}

// Tags

func (s *Store) ObserveTags(householdID string, h service.Handler[[]model.TagItem]) listener.Token {
	q := s.sub(householdID, tagsCollection).OrderBy("name", firestore.Asc)
	return watchQuery(s.logger, q, setTagID, nil, h)
}

func (s *Store) CreateTag(ctx context.Context, householdID string, tag model.TagItem) (model.TagItem, error) {
	ref := s.newRef(householdID, tagsCollection, tag.ID)
	tag.ID = ref.ID
	if _, err := ref.Create(ctx, tag); err != nil {
		return model.TagItem{}, fmt.Errorf("create tag: %w", err)
	}
	return tag, nil
}

func (s *Store) UpdateTag(ctx context.Context, householdID string, tag model.TagItem) error {
	_, err := s.sub(householdID, tagsCollection).Doc(tag.ID).Update(ctx, []firestore.Update{
		{Path: "name", Value: tag.Name},
		{Path: "colorHex", Value: tag.ColorHex},
	})
	if isNotFound(err) {
		return apperror.NotFound("tag", tag.ID)
	}
	if err != nil {
		return fmt.Errorf("update tag: %w", err)
	}
	return nil
}

func (s *Store) DeleteTag(ctx context.Context, householdID, tagID string) error {
	return s.deleteDoc(ctx, householdID, tagsCollection, "tag", tagID)
}

// Chore templates

func (s *Store) ObserveTemplates(householdID string, h service.Handler[[]model.ChoreTemplate]) listener.Token {
	q := s.sub(householdID, templatesCollection).OrderBy("title", firestore.Asc)
	return watchQuery(s.logger, q, setTemplateID, nil, h)
}

func (s *Store) CreateTemplate(ctx context.Context, householdID string, tmpl model.ChoreTemplate) (model.ChoreTemplate, error) {
	ref := s.newRef(householdID, templatesCollection, tmpl.ID)
	tmpl.ID = ref.ID
	if tmpl.Tags == nil {
		tmpl.Tags = []string{}
	}
	if _, err := ref.Create(ctx, tmpl); err != nil {
		return model.ChoreTemplate{}, fmt.Errorf("create template: %w", err)
	}
	return tmpl, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, householdID string, tmpl model.ChoreTemplate) error {
	if tmpl.Tags == nil {
		tmpl.Tags = []string{}
	}
	_, err := s.sub(householdID, templatesCollection).Doc(tmpl.ID).Update(ctx, []firestore.Update{
		{Path: "title", Value: tmpl.Title},
		{Path: "details", Value: tmpl.Details},
		{Path: "tags", Value: tmpl.Tags},
		{Path: "frequency", Value: string(tmpl.Frequency)},
		{Path: "baseScore", Value: tmpl.BaseScore},
		{Path: "estimatedMinutes", Value: tmpl.EstimatedMinutes},
	})
	if isNotFound(err) {
		return apperror.NotFound("template", tmpl.ID)
	}
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, householdID, templateID string) error {
	return s.deleteDoc(ctx, householdID, templatesCollection, "template", templateID)
}

// Tasks

func (s *Store) ObserveTasks(householdID string, h service.Handler[[]model.TaskItem]) listener.Token {
	q := s.sub(householdID, tasksCollection).OrderBy("dueDate", firestore.Asc)
	return watchQuery(s.logger, q, setTaskID, nil, h)
}

func (s *Store) CreateTask(ctx context.Context, householdID string, task model.TaskItem) (model.TaskItem, error) {
	ref := s.newRef(householdID, tasksCollection, task.ID)
	task.ID = ref.ID
	if task.AssignedMembers == nil {
		task.AssignedMembers = []model.HouseholdMember{}
	}
	if _, err := ref.Create(ctx, task); err != nil {
		return model.TaskItem{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// taskUpdates converts a patch into field updates keyed by document field.
func taskUpdates(p model.TaskPatch) []firestore.Update {
	var u []firestore.Update
	for _, field := range p.Fields() {
		var v any
		switch field {
		case "title":
			v = *p.Title
		case "details":
			v = *p.Details
		case "status":
			v = string(*p.Status)
		case "dueDate":
			v = *p.DueDate
		case "score":
			v = *p.Score
		case "roomTag":
			v = *p.RoomTag
		case "assignedMembers":
			members := *p.AssignedMembers
			if members == nil {
				members = []model.HouseholdMember{}
			}
			v = members
		case "completedAt":
			if p.CompletedAt == nil {
				v = nil
			} else {
				v = *p.CompletedAt
			}
		case "estimatedMinutes":
			v = *p.EstimatedMinutes
		}
		u = append(u, firestore.Update{Path: field, Value: v})
	}
	return u
}

func (s *Store) UpdateTask(ctx context.Context, householdID, taskID string, patch model.TaskPatch) error {
	updates := taskUpdates(patch)
	if len(updates) == 0 {
		return nil
	}
	_, err := s.sub(householdID, tasksCollection).Doc(taskID).Update(ctx, updates)
	if isNotFound(err) {
		return apperror.NotFound("task", taskID)
	}
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, householdID, taskID string) error {
	return s.deleteDoc(ctx, householdID, tasksCollection, "task", taskID)
}

// Rewards

func (s *Store) ObserveRewards(householdID string, h service.Handler[[]model.RewardItem]) listener.Token {
	return watchQuery(s.logger, s.sub(householdID, rewardsCollection).Query, setRewardID, nil, h)
}

func (s *Store) CreateReward(ctx context.Context, householdID string, r model.RewardItem) (model.RewardItem, error) {
	ref := s.newRef(householdID, rewardsCollection, r.ID)
	r.ID = ref.ID
	if _, err := ref.Create(ctx, r); err != nil {
		return model.RewardItem{}, fmt.Errorf("create reward: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateReward(ctx context.Context, householdID string, r model.RewardItem) error {
	_, err := s.sub(householdID, rewardsCollection).Doc(r.ID).Update(ctx, []firestore.Update{
		{Path: "name", Value: r.Name},
		{Path: "detail", Value: r.Detail},
		{Path: "cost", Value: r.Cost},
		{Path: "iconName", Value: r.IconName},
		{Path: "accentColor", Value: r.AccentColor},
	})
	if isNotFound(err) {
		return apperror.NotFound("reward", r.ID)
	}
	if err != nil {
		return fmt.Errorf("update reward: %w", err)
	}
	return nil
}

func (s *Store) DeleteReward(ctx context.Context, householdID, rewardID string) error {
	return s.deleteDoc(ctx, householdID, rewardsCollection, "reward", rewardID)
}

// Redemptions

func (s *Store) ObserveRedemptions(householdID string, h service.Handler[[]model.RewardRedemption]) listener.Token {
	q := s.sub(householdID, redemptionsCollection).OrderBy("redeemedAt", firestore.Desc)
	return watchQuery(s.logger, q, setRedemptionID, nil, h)
}

func (s *Store) Redeem(ctx context.Context, householdID string, r model.RewardRedemption) (model.RewardRedemption, error) {
	ref := s.newRef(householdID, redemptionsCollection, r.ID)
	r.ID = ref.ID
	if r.RedeemedAt.IsZero() {
		r.RedeemedAt = time.Now().UTC()
	}
	if _, err := ref.Create(ctx, r); err != nil {
		return model.RewardRedemption{}, fmt.Errorf("redeem: %w", err)
	}
	return r, nil
}
