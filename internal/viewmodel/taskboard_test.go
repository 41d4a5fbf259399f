package viewmodel

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/model"
)

func TestOnDayHalfOpen(t *testing.T) {
	day := time.Date(2026, 4, 15, 15, 30, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2026, 4, 15, 23, 59, 59, 0, time.UTC), true},
		{time.Date(2026, 4, 16, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2026, 4, 14, 23, 59, 59, 0, time.UTC), false},
	}
	for _, tt := range tests {
		if got := OnDay(tt.at, day); got != tt.want {
			t.Errorf("OnDay(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestFilterTasks(t *testing.T) {
	day := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	tasks := []model.TaskItem{
		{ID: "mine-today", Status: model.StatusBacklog, DueDate: day.Add(9 * time.Hour), AssignedMembers: []model.HouseholdMember{alice}},
		{ID: "bob-today", Status: model.StatusInProgress, DueDate: day.Add(10 * time.Hour), AssignedMembers: []model.HouseholdMember{bob}},
		{ID: "open-tomorrow", Status: model.StatusBacklog, DueDate: day.AddDate(0, 0, 1)},
		{ID: "mine-done", Status: model.StatusCompleted, DueDate: day.AddDate(0, 0, 2), AssignedMembers: []model.HouseholdMember{alice}},
	}
	backlog := model.StatusBacklog

	tests := []struct {
		name   string
		filter BoardFilter
		status *model.TaskStatus
		day    *time.Time
		want   []string
	}{
		{"all", FilterAll, nil, nil, []string{"mine-today", "bob-today", "open-tomorrow", "mine-done"}},
		{"mine", FilterMine, nil, nil, []string{"mine-today", "mine-done"}},
		{"unassigned", FilterUnassigned, nil, nil, []string{"open-tomorrow"}},
		{"backlog", FilterAll, &backlog, nil, []string{"mine-today", "open-tomorrow"}},
		{"today", FilterAll, nil, &day, []string{"mine-today", "bob-today"}},
		{"mine backlog today", FilterMine, &backlog, &day, []string{"mine-today"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterTasks(tasks, &alice, tt.filter, tt.status, tt.day)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tasks, want %v", len(got), tt.want)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}

	if got := FilterTasks(tasks, nil, FilterMine, nil, nil); len(got) != 0 {
		t.Errorf("mine without member = %d tasks, want 0", len(got))
	}
}

func TestGroupByStatus(t *testing.T) {
	tasks := []model.TaskItem{
		{ID: "a", Status: model.StatusCompleted},
		{ID: "b", Status: model.StatusBacklog},
	}
	sections := GroupByStatus(tasks, nil)
	if len(sections) != 3 {
		t.Fatalf("sections = %d, want 3", len(sections))
	}
	if sections[0].Status != model.StatusBacklog || len(sections[0].Tasks) != 1 {
		t.Errorf("backlog section = %+v", sections[0])
	}
	if len(sections[1].Tasks) != 0 {
		t.Errorf("in progress section = %+v", sections[1])
	}

	done := model.StatusCompleted
	if only := GroupByStatus(tasks, &done); len(only) != 1 || only[0].Tasks[0].ID != "a" {
		t.Errorf("filtered sections = %+v", only)
	}
}

func TestWeekNavigation(t *testing.T) {
	f := newFixture(t)
	vm := NewTaskBoardViewModel(f.tasks, f.authStore, f.members, now, mainloop.Immediate(), slog.Default())
	defer vm.Close()

	week := vm.State().Get().Week
	if len(week) != 7 || week[0].Weekday() != time.Sunday || !week[0].Equal(time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("week = %v", week)
	}

	vm.NextWeek()
	if got := vm.State().Get().Week[0]; !got.Equal(time.Date(2026, 4, 19, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("next week starts %v", got)
	}
	if vm.State().Get().SelectedDay != nil {
		t.Error("navigation set a selected day")
	}

	vm.SelectDay(time.Date(2026, 4, 21, 18, 0, 0, 0, time.UTC))
	vm.PreviousWeek()
	s := vm.State().Get()
	if !s.Week[0].Equal(time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("week start = %v", s.Week[0])
	}
	if s.SelectedDay == nil || !s.SelectedDay.Equal(time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("selected = %v, want Apr 14", s.SelectedDay)
	}
}

func TestBoardRecomputesOnTaskChanges(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "u-alice", "Alice")
	vm := NewTaskBoardViewModel(f.tasks, f.authStore, f.members, now, mainloop.Immediate(), slog.Default())
	defer vm.Close()

	vm.SetFilter(FilterMine)
	if got := vm.State().Get().Total; got != 0 {
		t.Fatalf("total = %d, want 0", got)
	}

	ctx := context.Background()
	task, err := f.tasks.CreateTask(ctx, model.TaskItem{Title: "Laundry", DueDate: now})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if got := vm.State().Get().Total; got != 0 {
		t.Fatalf("unassigned task counted as mine: total = %d", got)
	}

	me := f.authStore.CurrentMember()
	if _, err := f.tasks.Start(ctx, task.ID, me); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s := vm.State().Get()
	if s.Total != 1 || len(s.Sections[1].Tasks) != 1 {
		t.Errorf("state = %+v", s)
	}

	vm.SelectDay(now.AddDate(0, 0, 1))
	if got := vm.State().Get().Total; got != 0 {
		t.Errorf("tomorrow total = %d, want 0", got)
	}
	vm.ClearDay()
	if got := vm.State().Get().Total; got != 1 {
		t.Errorf("cleared total = %d, want 1", got)
	}
}

func TestBoardRefreshesAssigneesFromDirectory(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "u-alice", "Alice")

	stale := model.HouseholdMember{ID: "m-bob", Name: "Robert (old)"}
	f.mem.CreateTask(context.Background(), f.household.ID, model.TaskItem{Title: "Bins", Status: model.StatusBacklog, DueDate: now, AssignedMembers: []model.HouseholdMember{stale}})

	vm := NewTaskBoardViewModel(f.tasks, f.authStore, f.members, now, mainloop.Immediate(), slog.Default())
	defer vm.Close()

	got := vm.State().Get().Sections[0].Tasks
	if len(got) != 1 || got[0].AssignedMembers[0].Name != "Bob" {
		t.Errorf("assignees = %+v, want directory name Bob", got)
	}
}
