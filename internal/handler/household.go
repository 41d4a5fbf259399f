package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorely/internal/app"
	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/invite"
	"github.com/dukerupert/chorely/internal/model"
)

type HouseholdHandler struct {
	app    *app.App
	logger *slog.Logger
}

func NewHouseholdHandler(a *app.App, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{app: a, logger: logger}
}

type householdRequest struct {
	Name string `json:"name" validate:"required,max=80"`
}

// joinRequest takes either a typed invite code or the content of a scanned
// invite QR code.
type joinRequest struct {
	InviteCode string `json:"invite_code" validate:"required_without=Payload"`
	Payload    string `json:"payload" validate:"required_without=InviteCode"`
}

type householdsResponse struct {
	Loading    bool                     `json:"loading"`
	CurrentID  string                   `json:"current_id"`
	Households []model.HouseholdSummary `json:"households"`
}

func (h *HouseholdHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Settle(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	snap := h.app.Households.Households().Get()
	writeJSON(w, http.StatusOK, householdsResponse{
		Loading:    snap.Loading(),
		CurrentID:  h.app.Households.CurrentID().Get(),
		Households: nonNil(snap.Items),
	})
}

func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	created, err := h.app.Households.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *HouseholdHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	code := req.InviteCode
	if req.Payload != "" {
		p, err := invite.ParsePayload(req.Payload)
		if err != nil {
			writeError(w, h.logger, apperror.ValidationFailed("payload", "invite payload is invalid"))
			return
		}
		code = p.Code
	}
	joined, err := h.app.Households.Join(r.Context(), code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, joined)
}

func (h *HouseholdHandler) Select(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Households.Select(r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.List(w, r)
}

func (h *HouseholdHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.app.Households.Rename(r.Context(), r.PathValue("id"), req.Name); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HouseholdHandler) RefreshInviteCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.app.Households.RefreshInviteCode(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"invite_code": code})
}

// InviteQR serves the invite code as a PNG for scanning on another device.
func (h *HouseholdHandler) InviteQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.app.Households.InviteQR(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (h *HouseholdHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Households.Leave(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HouseholdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Households.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HouseholdHandler) Members(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Settle(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.app.Members.Members().Get().Items))
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
