package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorely/internal/app"
	"github.com/dukerupert/chorely/internal/model"
)

type AuthHandler struct {
	app    *app.App
	logger *slog.Logger
}

func NewAuthHandler(a *app.App, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{app: a, logger: logger}
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"display_name" validate:"max=80"`
}

type profileRequest struct {
	Name        string `json:"name" validate:"required,max=80"`
	AccentColor string `json:"accent_color" validate:"omitempty,hexcolor"`
}

type pointsRequest struct {
	Delta int `json:"delta"`
}

// sessionResponse reports who is signed in once the profile load settled.
type sessionResponse struct {
	Session *model.Session         `json:"session"`
	Profile *model.UserProfile     `json:"profile"`
	Member  *model.HouseholdMember `json:"member"`
}

func (h *AuthHandler) respondSession(w http.ResponseWriter, r *http.Request, status int) {
	if err := h.app.Settle(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, status, sessionResponse{
		Session: h.app.Auth.Session().Get(),
		Profile: h.app.Auth.Profile().Get(),
		Member:  h.app.Auth.Member().Get(),
	})
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.app.Auth.SignIn(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondSession(w, r, http.StatusOK)
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.app.Auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondSession(w, r, http.StatusCreated)
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Auth.SignOut(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondSession(w, r, http.StatusOK)
}

// Refresh re-reads the provider's session, picking up changes made
// elsewhere such as a display name edit.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.app.Auth.RefreshSession(r.Context())
	h.respondSession(w, r, http.StatusOK)
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	h.respondSession(w, r, http.StatusOK)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.app.Auth.UpdateProfile(r.Context(), req.Name, req.AccentColor); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondSession(w, r, http.StatusOK)
}

// AdjustPoints changes the manual points counter on the profile. Balances
// shown on the rewards screen are derived from tasks and are unaffected.
func (h *AuthHandler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	points, err := h.app.Auth.AdjustPoints(r.Context(), req.Delta)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"points": points})
}
