package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/chorely/internal/app"
	"github.com/dukerupert/chorely/internal/invite"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service/memory"
	"github.com/dukerupert/chorely/internal/viewmodel"
	"github.com/dukerupert/chorely/internal/websocket"
)

type testEnv struct {
	mem       *memory.Store
	app       *app.App
	srv       *httptest.Server
	household model.HouseholdSummary
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	mem := memory.New()
	backend := mem.Backend(memory.NewAuth(), memory.NewKV())
	h, err := app.Seed(ctx, backend, time.Now())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	a := app.NewWithBackend(backend, invite.NewQRRenderer(128, "M"), time.Now().UTC(), slog.Default())
	a.Start(ctx)
	srv := httptest.NewServer(New(a, slog.Default()).Router())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return &testEnv{mem: mem, app: a, srv: srv, household: h}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status = %d, want %d (body %s)", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

type snapshot struct {
	Presentation viewmodel.Presentation  `json:"presentation"`
	Member       *model.HouseholdMember  `json:"member"`
	Household    *model.HouseholdSummary `json:"household"`
	Board        viewmodel.BoardState    `json:"board"`
	Rewards      viewmodel.RewardsState  `json:"rewards"`
	Errors       map[string]string       `json:"errors"`
}

func (e *testEnv) snapshot(t *testing.T) snapshot {
	t.Helper()
	resp := e.do(t, "GET", "/api/state", nil)
	expectStatus(t, resp, http.StatusOK)
	return decodeBody[snapshot](t, resp)
}

func findTask(t *testing.T, board viewmodel.BoardState, title string) model.TaskItem {
	t.Helper()
	for _, sec := range board.Sections {
		for _, task := range sec.Tasks {
			if task.Title == title {
				return task
			}
		}
	}
	t.Fatalf("task %q not on board", title)
	return model.TaskItem{}
}

func TestHealth(t *testing.T) {
	e := setup(t)
	resp := e.do(t, "GET", "/health", nil)
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestStateSnapshot(t *testing.T) {
	e := setup(t)
	s := e.snapshot(t)

	if s.Presentation != viewmodel.Dashboard {
		t.Errorf("presentation = %v, want %v", s.Presentation, viewmodel.Dashboard)
	}
	if s.Member == nil || s.Member.Name != "Alex" {
		t.Errorf("member = %+v, want Alex", s.Member)
	}
	if s.Household == nil || s.Household.ID != e.household.ID {
		t.Errorf("household = %+v, want %s", s.Household, e.household.ID)
	}
	if s.Board.Total != 6 {
		t.Errorf("board total = %d, want 6", s.Board.Total)
	}
}

func TestCompleteTaskEarnsPoints(t *testing.T) {
	e := setup(t)
	before := e.snapshot(t)
	task := findTask(t, before.Board, "Fold laundry")

	resp := e.do(t, "POST", "/api/tasks/"+task.ID+"/complete", nil)
	expectStatus(t, resp, http.StatusOK)
	done := decodeBody[model.TaskItem](t, resp)
	if done.Status != model.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("task = %+v, want completed with timestamp", done)
	}

	after := e.snapshot(t)
	if got, want := after.Rewards.AvailablePoints, before.Rewards.AvailablePoints+task.Score; got != want {
		t.Errorf("available points = %d, want %d", got, want)
	}

	resp = e.do(t, "POST", "/api/tasks/"+task.ID+"/reopen", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decodeBody[model.TaskItem](t, resp).Status; got != model.StatusBacklog {
		t.Errorf("status after reopen = %v, want %v", got, model.StatusBacklog)
	}
}

func TestCompleteUnassignedTaskForbidden(t *testing.T) {
	e := setup(t)
	task := findTask(t, e.snapshot(t).Board, "Scrub shower") // assigned to Riley

	resp := e.do(t, "POST", "/api/tasks/"+task.ID+"/complete", nil)
	expectStatus(t, resp, http.StatusForbidden)
	body := decodeBody[map[string]string](t, resp)
	if body["error"] == "" {
		t.Error("missing error message")
	}
}

type affordable struct {
	AffordableIDs []string `json:"affordable_ids"`
}

func TestRedeem(t *testing.T) {
	e := setup(t)
	s := e.snapshot(t)

	var cheap, dear model.RewardItem
	for _, r := range s.Rewards.Catalog {
		switch r.Name {
		case "Ice cream trip":
			cheap = r
		case "Skip a chore":
			dear = r
		}
	}

	resp := e.do(t, "POST", "/api/rewards/"+dear.ID+"/redeem", nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = e.do(t, "GET", "/api/rewards", nil)
	expectStatus(t, resp, http.StatusOK)
	if ids := decodeBody[affordable](t, resp).AffordableIDs; len(ids) != 0 {
		t.Errorf("affordable before earning = %v, want none", ids)
	}

	// Alex has 10 points from the seed; earn enough for the cheap reward.
	resp = e.do(t, "POST", "/api/tasks", map[string]any{
		"title":        "Clean the garage",
		"score":        100,
		"assignee_ids": []string{s.Member.ID},
	})
	expectStatus(t, resp, http.StatusCreated)
	garage := decodeBody[model.TaskItem](t, resp)
	expectStatus(t, e.do(t, "POST", "/api/tasks/"+garage.ID+"/start", nil), http.StatusOK)
	expectStatus(t, e.do(t, "POST", "/api/tasks/"+garage.ID+"/complete", nil), http.StatusOK)

	resp = e.do(t, "GET", "/api/rewards", nil)
	expectStatus(t, resp, http.StatusOK)
	if ids := decodeBody[affordable](t, resp).AffordableIDs; !slices.Contains(ids, cheap.ID) || slices.Contains(ids, dear.ID) {
		t.Errorf("affordable = %v, want %s without %s", ids, cheap.ID, dear.ID)
	}

	resp = e.do(t, "POST", "/api/rewards/"+cheap.ID+"/redeem", nil)
	expectStatus(t, resp, http.StatusCreated)
	entry := decodeBody[model.RewardRedemption](t, resp)
	if entry.Cost != cheap.Cost {
		t.Errorf("cost = %d, want %d", entry.Cost, cheap.Cost)
	}

	after := e.snapshot(t)
	if got := len(after.Rewards.Redemptions); got != 1 {
		t.Errorf("redemptions = %d, want 1", got)
	}
}

func TestBoardFilters(t *testing.T) {
	e := setup(t)

	resp := e.do(t, "PUT", "/api/board/filter", map[string]any{"filter": "unassigned"})
	expectStatus(t, resp, http.StatusOK)
	board := decodeBody[viewmodel.BoardState](t, resp)
	if board.Total != 1 {
		t.Errorf("unassigned total = %d, want 1", board.Total)
	}

	resp = e.do(t, "PUT", "/api/board/filter", map[string]any{"filter": "mine", "status": "completed"})
	expectStatus(t, resp, http.StatusOK)
	board = decodeBody[viewmodel.BoardState](t, resp)
	if board.Total != 1 || len(board.Sections) != 1 {
		t.Errorf("mine+completed = %d tasks in %d sections, want 1 in 1", board.Total, len(board.Sections))
	}

	resp = e.do(t, "PUT", "/api/board/filter", map[string]any{"filter": "everyone"})
	expectStatus(t, resp, http.StatusBadRequest)

	before := decodeBody[viewmodel.BoardState](t, e.do(t, "GET", "/api/board", nil))
	resp = e.do(t, "POST", "/api/board/week/next", nil)
	expectStatus(t, resp, http.StatusOK)
	next := decodeBody[viewmodel.BoardState](t, resp)
	if got := next.Week[0].Sub(before.Week[0]); got != 7*24*time.Hour {
		t.Errorf("week shift = %v, want 168h", got)
	}
	expectStatus(t, e.do(t, "POST", "/api/board/week/sideways", nil), http.StatusBadRequest)
}

func TestHouseholdErrors(t *testing.T) {
	e := setup(t)

	resp := e.do(t, "DELETE", "/api/households/"+e.household.ID, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = e.do(t, "POST", "/api/households/missing/select", nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = e.do(t, "POST", "/api/households", map[string]string{"name": ""})
	expectStatus(t, resp, http.StatusBadRequest)
	if got := decodeBody[map[string]string](t, resp)["error"]; got != "name is required" {
		t.Errorf("error = %q, want name is required", got)
	}
}

func TestHouseholdLifecycle(t *testing.T) {
	e := setup(t)

	resp := e.do(t, "POST", "/api/households", map[string]string{"name": "Cabin"})
	expectStatus(t, resp, http.StatusCreated)
	cabin := decodeBody[model.HouseholdSummary](t, resp)

	resp = e.do(t, "GET", "/api/households", nil)
	expectStatus(t, resp, http.StatusOK)
	list := decodeBody[struct {
		CurrentID  string                   `json:"current_id"`
		Households []model.HouseholdSummary `json:"households"`
	}](t, resp)
	if list.CurrentID != cabin.ID || len(list.Households) != 2 {
		t.Fatalf("households = %+v, want 2 with Cabin selected", list)
	}

	expectStatus(t, e.do(t, "PUT", "/api/households/"+cabin.ID, map[string]string{"name": "Lake Cabin"}), http.StatusNoContent)

	resp = e.do(t, "POST", "/api/households/"+cabin.ID+"/invite-code", nil)
	expectStatus(t, resp, http.StatusOK)
	if code := decodeBody[map[string]string](t, resp)["invite_code"]; code == "" || code == cabin.InviteCode {
		t.Errorf("invite code = %q, want a new code", code)
	}

	resp = e.do(t, "GET", "/api/households/"+cabin.ID+"/invite.png", nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}

	expectStatus(t, e.do(t, "POST", "/api/households/"+e.household.ID+"/select", nil), http.StatusOK)
	expectStatus(t, e.do(t, "DELETE", "/api/households/"+cabin.ID, nil), http.StatusNoContent)
}

func TestJoinWithScannedPayload(t *testing.T) {
	e := setup(t)
	beach, err := e.mem.CreateHousehold(context.Background(), "Beach House", "someone-else")
	if err != nil {
		t.Fatalf("CreateHousehold: %v", err)
	}

	expectStatus(t, e.do(t, "POST", "/api/households/join", map[string]string{}), http.StatusBadRequest)
	expectStatus(t, e.do(t, "POST", "/api/households/join", map[string]string{"payload": "not json"}), http.StatusBadRequest)

	payload, _ := json.Marshal(map[string]string{
		"household_id": beach.ID,
		"name":         beach.Name,
		"code":         strings.ToLower(beach.InviteCode),
		"type":         "household_invite",
	})
	resp := e.do(t, "POST", "/api/households/join", map[string]string{"payload": string(payload)})
	expectStatus(t, resp, http.StatusOK)
	if got := decodeBody[model.HouseholdSummary](t, resp); got.ID != beach.ID {
		t.Errorf("joined = %+v, want %s", got, beach.ID)
	}
}

func TestBackendErrorPassesThrough(t *testing.T) {
	e := setup(t)
	e.mem.FailNext("CreateTag", errors.New("quota exceeded"))

	resp := e.do(t, "POST", "/api/tags", map[string]string{"name": "Garage"})
	expectStatus(t, resp, http.StatusInternalServerError)
	if got := decodeBody[map[string]string](t, resp)["error"]; !strings.Contains(got, "quota exceeded") {
		t.Errorf("error = %q, want backend description", got)
	}

	if got := e.snapshot(t).Errors["tags"]; !strings.Contains(got, "quota exceeded") {
		t.Errorf("tags last error = %q, want quota exceeded", got)
	}
}

func TestSignInValidationAndRateLimit(t *testing.T) {
	e := setup(t)

	resp := e.do(t, "POST", "/api/auth/sign-in", map[string]string{"email": "not-an-email", "password": "x"})
	expectStatus(t, resp, http.StatusBadRequest)

	for i := 1; i < authRateLimit; i++ {
		e.do(t, "POST", "/api/auth/sign-in", map[string]string{"email": "a@b.co", "password": "wrong"})
	}
	resp = e.do(t, "POST", "/api/auth/sign-in", map[string]string{"email": "a@b.co", "password": "wrong"})
	expectStatus(t, resp, http.StatusTooManyRequests)
}

func TestSignOutAndBackIn(t *testing.T) {
	e := setup(t)

	expectStatus(t, e.do(t, "POST", "/api/auth/sign-out", nil), http.StatusOK)
	if got := e.snapshot(t).Presentation; got != viewmodel.Authentication {
		t.Fatalf("presentation = %v, want %v", got, viewmodel.Authentication)
	}

	resp := e.do(t, "POST", "/api/auth/sign-in", map[string]string{"email": app.DemoEmail, "password": app.DemoPassword})
	expectStatus(t, resp, http.StatusOK)
	if got := e.snapshot(t).Presentation; got != viewmodel.Dashboard {
		t.Errorf("presentation = %v, want %v", got, viewmodel.Dashboard)
	}
}

func TestWebSocketReceivesChanges(t *testing.T) {
	e := setup(t)
	e.snapshot(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(e.srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	read := func() websocket.Message {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	}

	if hello := read(); hello.Type != "session_connected" {
		t.Fatalf("first message = %q, want session_connected", hello.Type)
	}

	expectStatus(t, e.do(t, "POST", "/api/tags", map[string]string{"name": "Garage"}), http.StatusCreated)
	for {
		msg := read()
		if msg.Type == "tags_changed" {
			if msg.Household != e.household.ID {
				t.Errorf("household = %q, want %q", msg.Household, e.household.ID)
			}
			return
		}
	}
}
