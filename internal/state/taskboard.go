package state

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/observable"
	"github.com/dukerupert/chorely/internal/service"
)

func taskID(t model.TaskItem) string { return t.ID }

func sortTasks(items []model.TaskItem) {
	slices.SortStableFunc(items, func(a, b model.TaskItem) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return strings.Compare(a.Title, b.Title)
	})
}

// TaskBoardStore owns the household's tasks and their state machine:
// backlog -> inProgress -> completed, with reopen back to backlog.
type TaskBoardStore struct {
	svc    service.TaskService
	logger *slog.Logger
	list   *scoped[model.TaskItem]
	errs   *observable.Value[error]

	// Now stamps completions. Tests replace it.
	Now func() time.Time
}

func NewTaskBoardStore(svc service.TaskService, dispatch mainloop.Dispatcher, logger *slog.Logger) *TaskBoardStore {
	errs := observable.NewValue[error](nil)
	return &TaskBoardStore{
		svc:    svc,
		logger: logger,
		errs:   errs,
		list:   newScoped(logger, dispatch, errs, svc.ObserveTasks, sortTasks),
		Now:    time.Now,
	}
}

func (s *TaskBoardStore) Bind(householdID string) { s.list.bind(householdID) }

func (s *TaskBoardStore) Tasks() observable.Observable[Snapshot[model.TaskItem]] { return s.list.state }

func (s *TaskBoardStore) LastError() observable.Observable[error] { return s.errs }

// Task returns the task with id from the current household.
func (s *TaskBoardStore) Task(id string) (model.TaskItem, bool) {
	t, ok := findID(s.list.items(), id, taskID)
	if !ok {
		return model.TaskItem{}, false
	}
	return t.Clone(), true
}

func (s *TaskBoardStore) fail(err error) error {
	s.errs.Set(err)
	return err
}

func validateTask(t model.TaskItem) error {
	if strings.TrimSpace(t.Title) == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if t.Score < 0 {
		return apperror.ValidationFailed("score", "score cannot be negative")
	}
	if t.EstimatedMinutes < 0 {
		return apperror.ValidationFailed("estimated_minutes", "estimated minutes cannot be negative")
	}
	return nil
}

// CreateTask adds a standalone task in the backlog.
func (s *TaskBoardStore) CreateTask(ctx context.Context, draft model.TaskItem) (model.TaskItem, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	if err := validateTask(draft); err != nil {
		return model.TaskItem{}, s.fail(err)
	}
	draft.ID = ""
	draft.Status = model.StatusBacklog
	draft.CompletedAt = nil
	return s.create(ctx, draft)
}

// Enqueue instantiates a backlog task from a catalog template.
func (s *TaskBoardStore) Enqueue(ctx context.Context, tmpl model.ChoreTemplate, assignee *model.HouseholdMember, due time.Time) (model.TaskItem, error) {
	if due.IsZero() {
		due = s.Now()
	}
	return s.create(ctx, model.TaskFromTemplate(tmpl, assignee, due))
}

func (s *TaskBoardStore) create(ctx context.Context, task model.TaskItem) (model.TaskItem, error) {
	hid := s.list.current()
	if hid == "" {
		return model.TaskItem{}, s.fail(apperror.MissingScope("household"))
	}

	created, err := s.svc.CreateTask(ctx, hid, task)
	if err != nil {
		return model.TaskItem{}, s.fail(fmt.Errorf("create task: %w", err))
	}
	s.list.mutate(hid, func(items []model.TaskItem) []model.TaskItem {
		return upsert(items, created.Clone(), taskID)
	})
	s.logger.Info("task created", "task_id", created.ID, "household_id", hid)
	return created, nil
}

// Start moves a task to in progress. The actor must be assigned; an
// unassigned task is assigned to the actor.
func (s *TaskBoardStore) Start(ctx context.Context, id string, actor *model.HouseholdMember) (model.TaskItem, error) {
	return s.transition(ctx, id, func(t model.TaskItem) (model.TaskItem, error) {
		if actor == nil {
			return t, apperror.Unauthorized("sign in to start a task")
		}
		if len(t.AssignedMembers) == 0 {
			t.AssignedMembers = []model.HouseholdMember{*actor}
		} else if !t.IsAssigned(*actor) {
			return t, apperror.Unauthorized("only assigned members can start this task")
		}
		t.Status = model.StatusInProgress
		t.CompletedAt = nil
		return t, nil
	})
}

// Complete marks a task done and stamps the completion time. The actor must
// be assigned.
func (s *TaskBoardStore) Complete(ctx context.Context, id string, actor *model.HouseholdMember) (model.TaskItem, error) {
	return s.transition(ctx, id, func(t model.TaskItem) (model.TaskItem, error) {
		if actor == nil || !t.IsAssigned(*actor) {
			return t, apperror.Unauthorized("only assigned members can complete this task")
		}
		if t.Status == model.StatusCompleted {
			return t, nil
		}
		now := s.Now()
		t.Status = model.StatusCompleted
		t.CompletedAt = &now
		return t, nil
	})
}

// Reopen returns a completed task to the backlog.
func (s *TaskBoardStore) Reopen(ctx context.Context, id string, actor *model.HouseholdMember) (model.TaskItem, error) {
	return s.transition(ctx, id, func(t model.TaskItem) (model.TaskItem, error) {
		if actor == nil || !t.IsAssigned(*actor) {
			return t, apperror.Unauthorized("only assigned members can reopen this task")
		}
		t.Status = model.StatusBacklog
		t.CompletedAt = nil
		return t, nil
	})
}

// Assign replaces the task's assignees.
func (s *TaskBoardStore) Assign(ctx context.Context, id string, members []model.HouseholdMember) (model.TaskItem, error) {
	return s.transition(ctx, id, func(t model.TaskItem) (model.TaskItem, error) {
		t.AssignedMembers = slices.Clone(members)
		return t, nil
	})
}

// UpdateTaskDetails edits the descriptive fields of a task without touching
// its status.
func (s *TaskBoardStore) UpdateTaskDetails(ctx context.Context, id string, d model.TaskDetails) (model.TaskItem, error) {
	d.Title = strings.TrimSpace(d.Title)
	return s.transition(ctx, id, func(t model.TaskItem) (model.TaskItem, error) {
		next := t.WithDetails(d)
		if err := validateTask(next); err != nil {
			return t, err
		}
		return next, nil
	})
}

// transition computes the next version of a task locally, persists only the
// changed fields and applies the change once the write succeeds.
func (s *TaskBoardStore) transition(ctx context.Context, id string, fn func(model.TaskItem) (model.TaskItem, error)) (model.TaskItem, error) {
	hid := s.list.current()
	if hid == "" {
		return model.TaskItem{}, s.fail(apperror.MissingScope("household"))
	}
	cur, ok := s.Task(id)
	if !ok {
		return model.TaskItem{}, s.fail(apperror.NotFound("task", id))
	}

	next, err := fn(cur.Clone())
	if err != nil {
		return cur, s.fail(err)
	}
	patch := model.DiffTask(cur, next)
	if patch.Empty() {
		return cur, nil
	}

	if err := s.svc.UpdateTask(ctx, hid, id, patch); err != nil {
		return cur, s.fail(fmt.Errorf("update task: %w", err))
	}
	s.list.mutate(hid, func(items []model.TaskItem) []model.TaskItem {
		if i := slices.IndexFunc(items, func(t model.TaskItem) bool { return t.ID == id }); i >= 0 {
			items[i] = patch.Apply(items[i])
		}
		return items
	})
	s.logger.Debug("task updated", "task_id", id, "fields", patch.Fields())
	return next, nil
}

// DeleteTask removes a task permanently.
func (s *TaskBoardStore) DeleteTask(ctx context.Context, id string) error {
	hid := s.list.current()
	if hid == "" {
		return s.fail(apperror.MissingScope("household"))
	}
	if _, ok := s.Task(id); !ok {
		return s.fail(apperror.NotFound("task", id))
	}

	if err := s.svc.DeleteTask(ctx, hid, id); err != nil {
		return s.fail(fmt.Errorf("delete task: %w", err))
	}
	s.list.mutate(hid, func(items []model.TaskItem) []model.TaskItem {
		return removeID(items, id, taskID)
	})
	return nil
}

func (s *TaskBoardStore) Close() { s.list.close() }
