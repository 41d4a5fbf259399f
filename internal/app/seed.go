package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

// Demo account credentials. The account is left signed in after seeding.
const (
	DemoEmail    = "demo@chorely.local"
	DemoPassword = "chorely-demo"
)

var demoTags = []model.TagItem{
	{Name: "Kitchen", ColorHex: "#F2994A"},
	{Name: "Bathroom", ColorHex: "#2F80ED"},
	{Name: "Laundry", ColorHex: "#9B51E0"},
	{Name: "Yard", ColorHex: "#27AE60"},
}

var demoTemplates = []model.ChoreTemplate{
	{Title: "Unload dishwasher", Tags: []string{"Kitchen"}, Frequency: model.FrequencyDaily, BaseScore: 10, EstimatedMinutes: 10},
	{Title: "Wipe counters", Tags: []string{"Kitchen"}, Frequency: model.FrequencyDaily, BaseScore: 5, EstimatedMinutes: 5},
	{Title: "Scrub shower", Tags: []string{"Bathroom"}, Frequency: model.FrequencyWeekly, BaseScore: 40, EstimatedMinutes: 30},
	{Title: "Fold laundry", Tags: []string{"Laundry"}, Frequency: model.FrequencyWeekly, BaseScore: 20, EstimatedMinutes: 20},
	{Title: "Mow the lawn", Details: "Front and back", Tags: []string{"Yard"}, Frequency: model.FrequencyBiweekly, BaseScore: 60, EstimatedMinutes: 45},
}

var demoRewards = []model.RewardItem{
	{Name: "Ice cream trip", Cost: 50, IconName: "ice-cream", AccentColor: "#F2C94C"},
	{Name: "Pick the movie", Cost: 80, IconName: "film", AccentColor: "#EB5757"},
	{Name: "Skip a chore", Detail: "Any one backlog chore", Cost: 150, IconName: "ticket", AccentColor: "#56CCF2"},
}

// Seed creates a demo household with three members, tags, templates, a week
// of tasks and a reward catalog, and signs the demo account in.
func Seed(ctx context.Context, b service.Backend, now time.Time) (model.HouseholdSummary, error) {
	if err := b.Auth.SignUp(ctx, DemoEmail, DemoPassword, "Alex"); err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("create demo account: %w", err)
	}
	sess := b.Auth.RefreshCurrentSession(ctx)
	if sess == nil {
		return model.HouseholdSummary{}, errors.New("demo account is not signed in")
	}

	owner := model.DefaultProfile(*sess, uuid.NewString())
	profiles := []model.UserProfile{
		owner,
		{ID: "demo-sam", Name: "Sam", Email: "sam@chorely.local", MemberID: uuid.NewString(), AccentColor: model.AvatarColor("demo-sam")},
		{ID: "demo-riley", Name: "Riley", Email: "riley@chorely.local", MemberID: uuid.NewString(), AccentColor: model.AvatarColor("demo-riley")},
	}
	for _, p := range profiles {
		if err := b.Profiles.SaveProfile(ctx, p); err != nil {
			return model.HouseholdSummary{}, fmt.Errorf("save profile %s: %w", p.Name, err)
		}
	}
	if err := b.Settings.Set(service.MemberIDKey(owner.ID), owner.MemberID); err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("cache member id: %w", err)
	}

	h, err := b.Households.CreateHousehold(ctx, "Maple Street", owner.ID)
	if err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("create household: %w", err)
	}
	for _, p := range profiles[1:] {
		if _, err := b.Households.JoinHousehold(ctx, h.InviteCode, p.ID); err != nil {
			return model.HouseholdSummary{}, fmt.Errorf("join %s: %w", p.Name, err)
		}
	}

	for _, tag := range demoTags {
		if _, err := b.Tags.CreateTag(ctx, h.ID, tag); err != nil {
			return model.HouseholdSummary{}, fmt.Errorf("create tag %s: %w", tag.Name, err)
		}
	}

	members := make([]model.HouseholdMember, len(profiles))
	for i, p := range profiles {
		members[i] = model.MemberFromProfile(p)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 18, 0, 0, 0, now.Location())
	for i, tmpl := range demoTemplates {
		created, err := b.Templates.CreateTemplate(ctx, h.ID, tmpl)
		if err != nil {
			return model.HouseholdSummary{}, fmt.Errorf("create template %s: %w", tmpl.Title, err)
		}
		assignee := members[i%len(members)]
		task := model.TaskFromTemplate(created, &assignee, today.AddDate(0, 0, i-1))
		// The first two are already done so the leaderboard has points.
		if i < 2 {
			completed := task.DueDate.Add(-time.Hour)
			task.Status = model.StatusCompleted
			task.CompletedAt = &completed
		}
		if _, err := b.Tasks.CreateTask(ctx, h.ID, task); err != nil {
			return model.HouseholdSummary{}, fmt.Errorf("create task %s: %w", task.Title, err)
		}
	}
	if _, err := b.Tasks.CreateTask(ctx, h.ID, model.TaskItem{
		Title:   "Water the plants",
		Status:  model.StatusBacklog,
		DueDate: today.AddDate(0, 0, 2),
		Score:   5,
	}); err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("create unassigned task: %w", err)
	}

	for _, r := range demoRewards {
		if _, err := b.Rewards.CreateReward(ctx, h.ID, r); err != nil {
			return model.HouseholdSummary{}, fmt.Errorf("create reward %s: %w", r.Name, err)
		}
	}

	if err := b.Settings.Set(service.KeySelectedHouseholdID, h.ID); err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("cache selected household: %w", err)
	}
	if err := b.Settings.Set(service.KeySelectedHouseholdName, h.Name); err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("cache selected household: %w", err)
	}
	return h, nil
}
