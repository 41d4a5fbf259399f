package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorely/internal/app"
	"github.com/dukerupert/chorely/internal/handler"
	"github.com/dukerupert/chorely/internal/middleware"
	ws "github.com/dukerupert/chorely/internal/websocket"
)

// Credential endpoints accept this many attempts per client per window.
const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type Server struct {
	app         *app.App
	authH       *handler.AuthHandler
	householdH  *handler.HouseholdHandler
	catalogH    *handler.CatalogHandler
	taskH       *handler.TaskHandler
	rewardH     *handler.RewardHandler
	stateH      *handler.StateHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(a *app.App, logger *slog.Logger) *Server {
	return &Server{
		app:         a,
		authH:       handler.NewAuthHandler(a, logger.With("component", "auth_handler")),
		householdH:  handler.NewHouseholdHandler(a, logger.With("component", "household_handler")),
		catalogH:    handler.NewCatalogHandler(a, logger.With("component", "catalog_handler")),
		taskH:       handler.NewTaskHandler(a, logger.With("component", "task_handler")),
		rewardH:     handler.NewRewardHandler(a, logger.With("component", "reward_handler")),
		stateH:      handler.NewStateHandler(a, logger.With("component", "state_handler")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.app.Hub, s.logger.With("component", "websocket")))
	s.registerAPIRoutes(mux)

	var h http.Handler = mux
	h = middleware.Recover(s.logger)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return middleware.RequestID(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"presentation": s.app.Presentation.State().Get(),
		"clients":      s.app.Hub.ClientCount(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP, authRateLimit, authRateWindow)(h)
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	// Session
	mux.Handle("POST /api/auth/sign-in", s.rateLimitedHandler(s.authH.SignIn))
	mux.Handle("POST /api/auth/sign-up", s.rateLimitedHandler(s.authH.SignUp))
	mux.HandleFunc("POST /api/auth/sign-out", s.authH.SignOut)
	mux.HandleFunc("POST /api/auth/refresh", s.authH.Refresh)
	mux.HandleFunc("GET /api/auth/session", s.authH.Session)
	mux.HandleFunc("PUT /api/profile", s.authH.UpdateProfile)
	mux.HandleFunc("POST /api/profile/points", s.authH.AdjustPoints)

	// Combined UI state
	mux.HandleFunc("GET /api/state", s.stateH.Snapshot)

	// Households
	mux.HandleFunc("GET /api/households", s.householdH.List)
	mux.HandleFunc("POST /api/households", s.householdH.Create)
	mux.HandleFunc("POST /api/households/join", s.householdH.Join)
	mux.HandleFunc("POST /api/households/{id}/select", s.householdH.Select)
	mux.HandleFunc("PUT /api/households/{id}", s.householdH.Rename)
	mux.HandleFunc("POST /api/households/{id}/invite-code", s.householdH.RefreshInviteCode)
	mux.HandleFunc("GET /api/households/{id}/invite.png", s.householdH.InviteQR)
	mux.HandleFunc("POST /api/households/{id}/leave", s.householdH.Leave)
	mux.HandleFunc("DELETE /api/households/{id}", s.householdH.Delete)
	mux.HandleFunc("GET /api/members", s.householdH.Members)

	// Tags and chore templates
	mux.HandleFunc("GET /api/tags", s.catalogH.ListTags)
	mux.HandleFunc("POST /api/tags", s.catalogH.CreateTag)
	mux.HandleFunc("PUT /api/tags/{id}", s.catalogH.UpdateTag)
	mux.HandleFunc("DELETE /api/tags/{id}", s.catalogH.DeleteTag)
	mux.HandleFunc("GET /api/templates", s.catalogH.ListTemplates)
	mux.HandleFunc("POST /api/templates", s.catalogH.CreateTemplate)
	mux.HandleFunc("PUT /api/templates/{id}", s.catalogH.UpdateTemplate)
	mux.HandleFunc("DELETE /api/templates/{id}", s.catalogH.DeleteTemplate)
	mux.HandleFunc("POST /api/templates/{id}/enqueue", s.catalogH.Enqueue)

	// Task board
	mux.HandleFunc("GET /api/board", s.stateH.Board)
	mux.HandleFunc("PUT /api/board/filter", s.stateH.SetFilter)
	mux.HandleFunc("PUT /api/board/day", s.stateH.SelectDay)
	mux.HandleFunc("DELETE /api/board/day", s.stateH.ClearDay)
	mux.HandleFunc("POST /api/board/week/{direction}", s.stateH.ShiftWeek)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)
	mux.HandleFunc("PUT /api/tasks/{id}/assignees", s.taskH.Assign)
	mux.HandleFunc("POST /api/tasks/{id}/start", s.taskH.Start)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.taskH.Complete)
	mux.HandleFunc("POST /api/tasks/{id}/reopen", s.taskH.Reopen)

	// Rewards
	mux.HandleFunc("GET /api/rewards", s.rewardH.State)
	mux.HandleFunc("POST /api/rewards", s.rewardH.Create)
	mux.HandleFunc("PUT /api/rewards/{id}", s.rewardH.Update)
	mux.HandleFunc("DELETE /api/rewards/{id}", s.rewardH.Delete)
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.rewardH.Redeem)
	mux.HandleFunc("DELETE /api/rewards/alert", s.rewardH.DismissAlert)
}
