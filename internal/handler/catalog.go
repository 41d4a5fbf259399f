package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorely/internal/app"
	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

// CatalogHandler serves the household's tags and chore templates.
type CatalogHandler struct {
	app    *app.App
	logger *slog.Logger
}

func NewCatalogHandler(a *app.App, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{app: a, logger: logger}
}

type tagRequest struct {
	Name     string `json:"name" validate:"required,max=40"`
	ColorHex string `json:"color_hex" validate:"omitempty,hexcolor"`
}

type templateRequest struct {
	Title            string          `json:"title" validate:"required,max=120"`
	Details          string          `json:"details"`
	Tags             []string        `json:"tags"`
	Frequency        model.Frequency `json:"frequency" validate:"required"`
	BaseScore        int             `json:"base_score"`
	EstimatedMinutes int             `json:"estimated_minutes"`
}

func (req templateRequest) template(id string) model.ChoreTemplate {
	return model.ChoreTemplate{
		ID:               id,
		Title:            req.Title,
		Details:          req.Details,
		Tags:             req.Tags,
		Frequency:        req.Frequency,
		BaseScore:        req.BaseScore,
		EstimatedMinutes: req.EstimatedMinutes,
	}
}

type enqueueRequest struct {
	AssigneeID string    `json:"assignee_id"`
	DueDate    time.Time `json:"due_date"`
}

func (h *CatalogHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Settle(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.app.Tags.Tags().Get().Items))
}

func (h *CatalogHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	tag, err := h.app.Tags.Create(r.Context(), req.Name, req.ColorHex)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (h *CatalogHandler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	tag := model.TagItem{ID: r.PathValue("id"), Name: req.Name, ColorHex: req.ColorHex}
	if err := h.app.Tags.Update(r.Context(), tag); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

func (h *CatalogHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Tags.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Settle(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.app.Catalog.Templates().Get().Items))
}

func (h *CatalogHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	tmpl, err := h.app.Catalog.Create(r.Context(), req.template(""))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

func (h *CatalogHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	tmpl := req.template(r.PathValue("id"))
	if err := h.app.Catalog.Update(r.Context(), tmpl); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *CatalogHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Enqueue creates a backlog task from a template, optionally assigned to a
// directory member. A zero due date means now.
func (h *CatalogHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	id := r.PathValue("id")
	tmpl, ok := h.app.Catalog.Template(id)
	if !ok {
		writeError(w, h.logger, apperror.NotFound("template", id))
		return
	}
	var assignee *model.HouseholdMember
	if req.AssigneeID != "" {
		m, err := lookupMember(h.app, req.AssigneeID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		assignee = &m
	}
	task, err := h.app.Tasks.Enqueue(r.Context(), tmpl, assignee, req.DueDate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// lookupMember resolves a member id against the household directory.
func lookupMember(a *app.App, id string) (model.HouseholdMember, error) {
	m, ok := a.Members.ByID(id)
	if !ok {
		return model.HouseholdMember{}, apperror.NotFound("member", id)
	}
	return m, nil
}
