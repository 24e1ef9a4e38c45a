package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"idlegame/engine/internal/clock"
	"idlegame/engine/internal/engine"
	"idlegame/engine/internal/logging"
	"idlegame/engine/internal/persistence"
	"idlegame/engine/internal/session"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type stubLimiter struct {
	remaining int
	wait      time.Duration
}

func (s *stubLimiter) Allow() bool {
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	return true
}

func (s *stubLimiter) RetryAfter() time.Duration { return s.wait }

func newGame(t *testing.T) (*session.Session, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(epoch)
	logger := logging.NewTestLogger()
	adapter := persistence.NewAdapter(persistence.NewMemoryStore(), clk)
	game := session.New(engine.NewMachine(adapter, clk, logger), clk, clk, logger, session.Options{})
	game.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = game.Close(ctx)
	})
	return game, clk
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) session.View {
	t.Helper()
	var view session.View
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v (%s)", err, rr.Body.String())
	}
	return view
}

func TestHealthHandlerReturnsJSON(t *testing.T) {
	game, _ := newGame(t)
	router := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Game: game}).Router()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "ok" || payload["timestamp"] != epoch.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected payload %v", payload)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestStateHandlerRendersFreshGame(t *testing.T) {
	game, _ := newGame(t)
	router := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Game: game}).Router()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("expected caller request id to be echoed")
	}
	view := decodeView(t, rr)
	if view.Counter != "0" || view.Production != "1" || view.LastSaved != "Never" || view.LastSavedAtMs != nil {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestActionHandlerAppliesActions(t *testing.T) {
	game, _ := newGame(t)
	router := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Game: game}).Router()

	for _, name := range []string{"upgrade", "tick", "save"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/actions/"+name, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d (%s)", name, rr.Code, rr.Body.String())
		}
		if rr.Header().Get("X-Command-ID") == "" {
			t.Fatalf("%s: expected command id header", name)
		}
	}
	view := session.NewView(game.Snapshot(), epoch)
	if view.Counter != "2" || view.Production != "2" || view.LastSaved != "Just now" {
		t.Fatalf("unexpected view after actions %+v", view)
	}
}

func TestActionHandlerRejectsUnknownAndWrongMethod(t *testing.T) {
	game, _ := newGame(t)
	router := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Game: game}).Router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/actions/prestige", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/actions/tick", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rr.Code)
	}
	var payload errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil || !strings.Contains(payload.Error, "GET") {
		t.Fatalf("unexpected 405 payload %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/state", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for DELETE on state, got %d", rr.Code)
	}
	if game.Snapshot().Counter.String() != "0" {
		t.Fatalf("expected rejected requests to leave the game untouched")
	}
}

func TestActionHandlerRateLimitsSaveAndLoad(t *testing.T) {
	game, _ := newGame(t)
	limiter := &stubLimiter{remaining: 1, wait: 2500 * time.Millisecond}
	router := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Game: game, RateLimiter: limiter}).Router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/actions/save", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first save to pass, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/actions/load", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "3" {
		t.Fatalf("expected Retry-After 3, got %q", rr.Header().Get("Retry-After"))
	}

	//1.- Ticks and upgrades are never limited.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/actions/tick", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected tick to bypass the limiter, got %d", rr.Code)
	}
}

func TestActionHandlerReportsClosedSession(t *testing.T) {
	game, _ := newGame(t)
	router := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Game: game}).Router()
	if err := game.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/actions/tick", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var payload errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil || !strings.Contains(payload.Error, "closed") {
		t.Fatalf("unexpected error payload %s", rr.Body.String())
	}
}

func TestStreamPushesViews(t *testing.T) {
	game, clk := newGame(t)
	server := httptest.NewServer(NewHandlerSet(Options{Logger: logging.NewTestLogger(), Game: game}).Router())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var view session.View
	if err := conn.ReadJSON(&view); err != nil {
		t.Fatalf("read initial view: %v", err)
	}
	if view.Counter != "0" {
		t.Fatalf("expected initial counter 0, got %s", view.Counter)
	}

	clk.Advance(time.Second)
	if err := conn.ReadJSON(&view); err != nil {
		t.Fatalf("read tick view: %v", err)
	}
	if view.Counter != "1" || view.CounterDisplay != "1" {
		t.Fatalf("expected pushed tick, got %+v", view)
	}

	if err := game.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	game, _ := newGame(t)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Game: game, AllowedOrigins: []string{"http://good.example"}})
	server := httptest.NewServer(handlers.Router())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected bad handshake, got %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 response, got %+v", resp)
	}

	header.Set("Origin", "http://good.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("expected allowed origin to connect: %v", err)
	}
	conn.Close()
}
