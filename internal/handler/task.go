package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorely/internal/app"
	"github.com/dukerupert/chorely/internal/model"
)

type TaskHandler struct {
	app    *app.App
	logger *slog.Logger
}

func NewTaskHandler(a *app.App, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{app: a, logger: logger}
}

type taskRequest struct {
	Title            string    `json:"title" validate:"required,max=120"`
	Details          string    `json:"details"`
	DueDate          time.Time `json:"due_date"`
	Score            int       `json:"score"`
	RoomTag          string    `json:"room_tag"`
	EstimatedMinutes int       `json:"estimated_minutes"`
	AssigneeIDs      []string  `json:"assignee_ids"`
}

type assignRequest struct {
	AssigneeIDs []string `json:"assignee_ids"`
}

func (h *TaskHandler) members(ids []string) ([]model.HouseholdMember, error) {
	members := make([]model.HouseholdMember, 0, len(ids))
	for _, id := range ids {
		m, err := lookupMember(h.app, id)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	assignees, err := h.members(req.AssigneeIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	due := req.DueDate
	if due.IsZero() {
		due = time.Now()
	}
	task, err := h.app.Tasks.CreateTask(r.Context(), model.TaskItem{
		Title:            req.Title,
		Details:          req.Details,
		DueDate:          due,
		Score:            req.Score,
		RoomTag:          req.RoomTag,
		EstimatedMinutes: req.EstimatedMinutes,
		AssignedMembers:  assignees,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	task, err := h.app.Tasks.UpdateTaskDetails(r.Context(), r.PathValue("id"), model.TaskDetails{
		Title:            req.Title,
		Details:          req.Details,
		DueDate:          req.DueDate,
		Score:            req.Score,
		RoomTag:          req.RoomTag,
		EstimatedMinutes: req.EstimatedMinutes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	assignees, err := h.members(req.AssigneeIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	task, err := h.app.Tasks.Assign(r.Context(), r.PathValue("id"), assignees)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Tasks.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionFunc func(ctx context.Context, id string, actor *model.HouseholdMember) (model.TaskItem, error)

// transition runs a status change as the signed-in member.
func (h *TaskHandler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := fn(r.Context(), r.PathValue("id"), h.app.Auth.CurrentMember())
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func (h *TaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(h.app.Tasks.Start)(w, r)
}

func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(h.app.Tasks.Complete)(w, r)
}

func (h *TaskHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(h.app.Tasks.Reopen)(w, r)
}
