package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/symposium/internal/board"
	"github.com/tinytelemetry/symposium/internal/duckdb"
	"github.com/tinytelemetry/symposium/internal/engine"
	"github.com/tinytelemetry/symposium/internal/game"
	"github.com/tinytelemetry/symposium/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLauncher struct {
	got model.RunConfig
	err error
}

func (l *stubLauncher) Launch(cfg model.RunConfig) (model.RunSummary, error) {
	l.got = cfg
	if l.err != nil {
		return model.RunSummary{}, l.err
	}
	return model.RunSummary{ID: "run-x", Config: cfg, Outcome: model.OutcomeRunning}, nil
}

type testEnv struct {
	store    *duckdb.Store
	launcher *stubLauncher
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	b, err := board.New(board.Config{Philosophers: 5})
	if err != nil {
		t.Fatal(err)
	}
	g, err := game.New(game.Config{Philosophers: 5})
	if err != nil {
		t.Fatal(err)
	}
	l := &stubLauncher{}
	srv := NewServer("", Deps{
		Board:    engine.NewBoard(b),
		Game:     engine.NewGame(g),
		Runs:     store,
		Launcher: l,
	})
	return &testEnv{store: store, launcher: l, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %s: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	body := decode[map[string]interface{}](t, w)
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
	if _, ok := body["runs"]; !ok {
		t.Error("health missing run count")
	}
}

func TestBoardEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/board/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	if snap := decode[model.BoardSnapshot](t, w); !snap.Running {
		t.Error("board not running after start")
	}

	w = env.do(t, http.MethodPut, "/api/board/settings", `{"philosophers": 8, "speed": 2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("settings status = %d: %s", w.Code, w.Body.String())
	}
	snap := decode[model.BoardSnapshot](t, w)
	if len(snap.Philosophers) != 8 || snap.Speed != 2 {
		t.Errorf("snapshot after settings = %d philosophers, speed %v", len(snap.Philosophers), snap.Speed)
	}

	w = env.do(t, http.MethodPut, "/api/board/settings", fmt.Sprintf(`{"philosophers": %d}`, model.MaxPhilosophers+1))
	if w.Code != http.StatusBadRequest {
		t.Errorf("oversized board status = %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodPut, "/api/board/settings", `{"speed": -1}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative speed status = %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodPut, "/api/board/settings", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", w.Code)
	}
}

func TestGameEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodPost, "/api/game/resume", ""); w.Code != http.StatusConflict {
		t.Errorf("resume before start = %d, want 409", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/game/start", ""); w.Code != http.StatusOK {
		t.Fatalf("start = %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/game/actions/eat", ""); w.Code != http.StatusConflict {
		t.Errorf("eat without selection = %d, want 409", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/game/select", `{"index": 42}`); w.Code != http.StatusBadRequest {
		t.Errorf("select out of range = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/game/select", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("select without index = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/game/select", `{"index": 0}`); w.Code != http.StatusOK {
		t.Fatalf("select = %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/api/game/actions/dance", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown action = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/game/actions/take-forks", ""); w.Code != http.StatusOK {
		t.Fatalf("take-forks = %d: %s", w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodPost, "/api/game/actions/eat", "")
	if w.Code != http.StatusOK {
		t.Fatalf("eat = %d: %s", w.Code, w.Body.String())
	}
	snap := decode[model.GameSnapshot](t, w)
	if snap.Philosophers[0].State != model.Eating || snap.Score != 1 {
		t.Errorf("after eat: state %v score %d", snap.Philosophers[0].State, snap.Score)
	}

	w = env.do(t, http.MethodDelete, "/api/game/select", "")
	if snap := decode[model.GameSnapshot](t, w); snap.Selected != nil {
		t.Error("selection survived DELETE")
	}
}

func TestLaunchRun(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/runs", `{"philosophers": 5, "time_to_die": 800, "time_to_eat": 200, "time_to_sleep": 200, "must_eat": 7}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("launch = %d: %s", w.Code, w.Body.String())
	}
	want := model.RunConfig{
		Philosophers: 5,
		TimeToDie:    800 * time.Millisecond,
		TimeToEat:    200 * time.Millisecond,
		TimeToSleep:  200 * time.Millisecond,
		MustEat:      7,
	}
	if env.launcher.got != want {
		t.Errorf("launched %+v, want %+v", env.launcher.got, want)
	}

	env.launcher.err = model.Tag(model.ErrInvalidArgument, errors.New("sim: invalid argument"))
	if w := env.do(t, http.MethodPost, "/api/runs", `{"philosophers": 0}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid launch = %d, want 400", w.Code)
	}
	env.launcher.err = model.Tag(model.ErrRejected, errors.New("too many concurrent runs"))
	if w := env.do(t, http.MethodPost, "/api/runs", `{"philosophers": 5}`); w.Code != http.StatusConflict {
		t.Errorf("busy launcher = %d, want 409", w.Code)
	}
}

func TestRunReadEndpoints(t *testing.T) {
	env := newTestEnv(t)
	err := env.store.CreateRun(model.RunSummary{
		ID:        "run-1",
		Config:    model.RunConfig{Philosophers: 2, TimeToDie: time.Second},
		StartedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	err = env.store.InsertEventBatch([]*model.Event{
		{RunID: "run-1", Seq: 1, Philosopher: 1, Kind: model.EventTookFork},
		{RunID: "run-1", Seq: 2, Philosopher: 1, Kind: model.EventEating},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/api/runs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	if body := decode[map[string]interface{}](t, w); body["count"].(float64) != 1 {
		t.Errorf("list count = %v", body["count"])
	}

	if w := env.do(t, http.MethodGet, "/api/runs/run-1", ""); w.Code != http.StatusOK {
		t.Errorf("get = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/runs/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("get unknown = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/runs/nope/events", ""); w.Code != http.StatusNotFound {
		t.Errorf("events unknown = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/runs?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/runs/run-1/events", "")
	if body := decode[map[string]interface{}](t, w); body["count"].(float64) != 2 {
		t.Errorf("events count = %v", body["count"])
	}
	w = env.do(t, http.MethodGet, "/api/runs/run-1/meals", "")
	var meals struct {
		Meals []model.MealCount `json:"meals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &meals); err != nil {
		t.Fatal(err)
	}
	if len(meals.Meals) != 1 || meals.Meals[0].Meals != 1 {
		t.Errorf("meals = %+v", meals.Meals)
	}
}

func TestQueryEndpoint(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"select", `{"sql": "SELECT COUNT(*) AS cnt FROM runs"}`, http.StatusOK},
		{"with", `{"sql": "WITH c AS (SELECT COUNT(*) AS cnt FROM events) SELECT cnt FROM c"}`, http.StatusOK},
		{"insert", `{"sql": "INSERT INTO runs (id) VALUES ('x')"}`, http.StatusBadRequest},
		{"drop", `{"sql": "DROP TABLE runs"}`, http.StatusBadRequest},
		{"copy", `{"sql": "SELECT 1; COPY runs TO '/tmp/evil.csv'"}`, http.StatusBadRequest},
		{"attach", `{"sql": "SELECT 1; ATTACH '/tmp/evil.db'"}`, http.StatusBadRequest},
		{"empty", `{"sql": ""}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/query", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSchemaEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/schema", "")
	if w.Code != http.StatusOK {
		t.Fatalf("schema = %d", w.Code)
	}
	body := decode[map[string]interface{}](t, w)
	tables := body["tables"].(map[string]interface{})
	for _, name := range []string{"runs", "events"} {
		if _, ok := tables[name]; !ok {
			t.Errorf("schema missing table %s", name)
		}
	}
}

func TestRunsDisabled(t *testing.T) {
	b, _ := board.New(board.Config{})
	g, _ := game.New(game.Config{})
	h := NewServer("", Deps{Board: engine.NewBoard(b), Game: engine.NewGame(g)}).Handler()

	for _, path := range []string{"/api/runs", "/api/schema"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s = %d, want 503", path, w.Code)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health without store = %d", w.Code)
	}
}

func TestWrongMethod(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/query", "")
	// gin answers 404 unless HandleMethodNotAllowed is set
	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("GET /api/query = %d, want 405 or 404", w.Code)
	}
}
