package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/changefeed"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

type TaskStore struct {
	db   *sql.DB
	feed *changefeed.Hub
}

var _ service.TaskService = (*TaskStore)(nil)

func NewTaskStore(db *sql.DB, feed *changefeed.Hub) *TaskStore {
	return &TaskStore{db: db, feed: feed}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.TaskItem, error) {
	var t model.TaskItem
	var assigned string
	var completedAt sql.NullTime
	err := scanner.Scan(
		&t.ID, &t.Title, &t.Details, &t.Status, &t.DueDate, &t.Score, &t.RoomTag,
		&assigned, &t.OriginTemplateID, &completedAt, &t.EstimatedMinutes,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(assigned), &t.AssignedMembers); err != nil {
		return nil, fmt.Errorf("decode assigned members: %w", err)
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	return &t, nil
}

const taskCols = `id, title, details, status, due_date, score, room_tag, assigned_members, origin_template_id, completed_at, estimated_minutes`

func encodeMembers(list []model.HouseholdMember) (string, error) {
	if list == nil {
		list = []model.HouseholdMember{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// List returns the household's tasks ordered by due date.
func (s *TaskStore) List(ctx context.Context, householdID string) ([]model.TaskItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE household_id = ? ORDER BY due_date ASC, created_at ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.TaskItem
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) GetByID(ctx context.Context, householdID, taskID string) (*model.TaskItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE id = ? AND household_id = ?`,
		taskID, householdID,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ObserveTasks(householdID string, h service.Handler[[]model.TaskItem]) listener.Token {
	return observe(s.feed, EntityTasks, householdID, h, func(ctx context.Context) ([]model.TaskItem, error) {
		return s.List(ctx, householdID)
	})
}

func (s *TaskStore) CreateTask(ctx context.Context, householdID string, task model.TaskItem) (model.TaskItem, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	assigned, err := encodeMembers(task.AssignedMembers)
	if err != nil {
		return model.TaskItem{}, fmt.Errorf("encode assigned members: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, household_id, title, details, status, due_date, score, room_tag,
		   assigned_members, origin_template_id, completed_at, estimated_minutes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, householdID, task.Title, task.Details, task.Status, task.DueDate.UTC(), task.Score, task.RoomTag,
		assigned, task.OriginTemplateID, nullableTime(task.CompletedAt), task.EstimatedMinutes,
	)
	if err != nil {
		return model.TaskItem{}, fmt.Errorf("insert task: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityTasks, "created", householdID, task.ID))
	return task, nil
}

// patchColumns translates a task patch into SET assignments.
func patchColumns(p model.TaskPatch) ([]string, []any, error) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Details != nil {
		add("details", *p.Details)
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.DueDate != nil {
		add("due_date", p.DueDate.UTC())
	}
	if p.Score != nil {
		add("score", *p.Score)
	}
	if p.RoomTag != nil {
		add("room_tag", *p.RoomTag)
	}
	if p.AssignedMembers != nil {
		assigned, err := encodeMembers(*p.AssignedMembers)
		if err != nil {
			return nil, nil, fmt.Errorf("encode assigned members: %w", err)
		}
		add("assigned_members", assigned)
	}
	if p.CompletedAtSet {
		add("completed_at", nullableTime(p.CompletedAt))
	}
	if p.EstimatedMinutes != nil {
		add("estimated_minutes", *p.EstimatedMinutes)
	}
	return sets, args, nil
}

// UpdateTask writes only the columns present in patch.
func (s *TaskStore) UpdateTask(ctx context.Context, householdID, taskID string, patch model.TaskPatch) error {
	sets, args, err := patchColumns(patch)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, taskID, householdID)
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND household_id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NotFound("task", taskID)
	}
	s.feed.Publish(changefeed.NewChange(EntityTasks, "updated", householdID, taskID))
	return nil
}

func (s *TaskStore) DeleteTask(ctx context.Context, householdID, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND household_id = ?`, taskID, householdID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityTasks, "deleted", householdID, taskID))
	return nil
}
