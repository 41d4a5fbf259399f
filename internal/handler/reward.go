package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorely/internal/app"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/viewmodel"
)

type RewardHandler struct {
	app    *app.App
	logger *slog.Logger
}

func NewRewardHandler(a *app.App, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{app: a, logger: logger}
}

type rewardRequest struct {
	Name        string `json:"name" validate:"required,max=80"`
	Detail      string `json:"detail"`
	Cost        int    `json:"cost" validate:"min=0"`
	IconName    string `json:"icon_name"`
	AccentColor string `json:"accent_color" validate:"omitempty,hexcolor"`
}

func (req rewardRequest) reward(id string) model.RewardItem {
	return model.RewardItem{
		ID:          id,
		Name:        req.Name,
		Detail:      req.Detail,
		Cost:        req.Cost,
		IconName:    req.IconName,
		AccentColor: req.AccentColor,
	}
}

type rewardsResponse struct {
	viewmodel.RewardsState
	AffordableIDs []string `json:"affordable_ids"`
}

// State returns balances, the catalog, the member's redemptions and the
// leaderboard, plus the rewards the member can redeem right now.
func (h *RewardHandler) State(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Settle(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	st := h.app.RewardsView.State().Get()
	resp := rewardsResponse{RewardsState: st, AffordableIDs: []string{}}
	for _, reward := range st.Catalog {
		if st.Affordable(reward) {
			resp.AffordableIDs = append(resp.AffordableIDs, reward.ID)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	reward, err := h.app.Rewards.CreateReward(r.Context(), req.reward(""))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	reward := req.reward(r.PathValue("id"))
	if err := h.app.Rewards.UpdateReward(r.Context(), reward); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Rewards.DeleteReward(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Redeem spends the signed-in member's points. The outcome is also raised as
// an alert on the rewards view.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Settle(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	entry, err := h.app.RewardsView.Redeem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *RewardHandler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	h.app.RewardsView.DismissAlert()
	w.WriteHeader(http.StatusNoContent)
}
