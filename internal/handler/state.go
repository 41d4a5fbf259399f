package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorely/internal/app"
	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/viewmodel"
)

// StateHandler serves the combined UI snapshot and the task board controls.
type StateHandler struct {
	app    *app.App
	logger *slog.Logger
}

func NewStateHandler(a *app.App, logger *slog.Logger) *StateHandler {
	return &StateHandler{app: a, logger: logger}
}

type snapshotResponse struct {
	Presentation viewmodel.Presentation   `json:"presentation"`
	Session      *model.Session           `json:"session"`
	Profile      *model.UserProfile       `json:"profile"`
	Member       *model.HouseholdMember   `json:"member"`
	Household    *model.HouseholdSummary  `json:"household"`
	Households   []model.HouseholdSummary `json:"households"`
	Members      []model.HouseholdMember  `json:"members"`
	Tags         []model.TagItem          `json:"tags"`
	Templates    []model.ChoreTemplate    `json:"templates"`
	Board        viewmodel.BoardState     `json:"board"`
	Rewards      viewmodel.RewardsState   `json:"rewards"`
	Alert        *viewmodel.Alert         `json:"alert,omitempty"`
	Errors       map[string]string        `json:"errors,omitempty"`
}

// Snapshot returns everything the UI renders, after pending updates have
// been applied.
func (h *StateHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Settle(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	a := h.app
	resp := snapshotResponse{
		Presentation: a.Presentation.State().Get(),
		Session:      a.Auth.Session().Get(),
		Profile:      a.Auth.Profile().Get(),
		Member:       a.Auth.Member().Get(),
		Households:   nonNil(a.Households.Households().Get().Items),
		Members:      nonNil(a.Members.Members().Get().Items),
		Tags:         nonNil(a.Tags.Tags().Get().Items),
		Templates:    nonNil(a.Catalog.Templates().Get().Items),
		Board:        a.Board.State().Get(),
		Rewards:      a.RewardsView.State().Get(),
		Alert:        a.RewardsView.Alert().Get(),
		Errors:       lastErrors(a),
	}
	if cur, ok := a.Households.Current(); ok {
		resp.Household = &cur
	}
	writeJSON(w, http.StatusOK, resp)
}

// lastErrors collects each store's most recent failure.
func lastErrors(a *app.App) map[string]string {
	sources := map[string]error{
		"auth":       a.Auth.LastError().Get(),
		"households": a.Households.LastError().Get(),
		"tags":       a.Tags.LastError().Get(),
		"templates":  a.Catalog.LastError().Get(),
		"tasks":      a.Tasks.LastError().Get(),
		"rewards":    a.Rewards.LastError().Get(),
		"members":    a.Members.LastError().Get(),
	}
	out := make(map[string]string)
	for name, err := range sources {
		if err != nil {
			out[name] = err.Error()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type filterRequest struct {
	Filter viewmodel.BoardFilter `json:"filter" validate:"omitempty,oneof=all mine unassigned"`
	Status *model.TaskStatus     `json:"status" validate:"omitempty,oneof=backlog inProgress completed"`
}

type dayRequest struct {
	Day time.Time `json:"day" validate:"required"`
}

func (h *StateHandler) respondBoard(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Settle(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Board.State().Get())
}

func (h *StateHandler) Board(w http.ResponseWriter, r *http.Request) {
	h.respondBoard(w, r)
}

// SetFilter replaces the board and status filters. An empty filter means
// all tasks and a null status means every status.
func (h *StateHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Filter == "" {
		req.Filter = viewmodel.FilterAll
	}
	h.app.Board.SetFilter(req.Filter)
	h.app.Board.SetStatusFilter(req.Status)
	h.respondBoard(w, r)
}

func (h *StateHandler) SelectDay(w http.ResponseWriter, r *http.Request) {
	var req dayRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.app.Board.SelectDay(req.Day)
	h.respondBoard(w, r)
}

func (h *StateHandler) ClearDay(w http.ResponseWriter, r *http.Request) {
	h.app.Board.ClearDay()
	h.respondBoard(w, r)
}

// ShiftWeek moves the calendar by one week; {direction} is next or previous.
func (h *StateHandler) ShiftWeek(w http.ResponseWriter, r *http.Request) {
	switch dir := r.PathValue("direction"); dir {
	case "next":
		h.app.Board.NextWeek()
	case "previous":
		h.app.Board.PreviousWeek()
	default:
		writeError(w, h.logger, apperror.ValidationFailed("direction", "direction must be next or previous"))
		return
	}
	h.respondBoard(w, r)
}
