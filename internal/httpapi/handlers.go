// Package httpapi exposes the live game over HTTP and WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"idlegame/engine/internal/clock"
	"idlegame/engine/internal/commands"
	"idlegame/engine/internal/domain"
	"idlegame/engine/internal/logging"
	"idlegame/engine/internal/session"
)

// Game is the slice of the session the handlers depend on.
type Game interface {
	Do(ctx context.Context, cmd commands.Command) (domain.State, error)
	Snapshot() domain.State
	Subscribe(buffer int) (<-chan session.Update, func())
	Clock() clock.Clock
}

// RateLimiter gates how frequently save and load may be requested.
type RateLimiter interface {
	Allow() bool
	RetryAfter() time.Duration
}

// Options configures the HandlerSet.
type Options struct {
	Logger         *logging.Logger
	Game           Game
	RateLimiter    RateLimiter
	AllowedOrigins []string
	// PingInterval sets the WebSocket keepalive cadence.
	PingInterval time.Duration
}

// HandlerSet bundles the game's HTTP handlers.
type HandlerSet struct {
	logger       *logging.Logger
	game         Game
	rateLimiter  RateLimiter
	origins      map[string]struct{}
	pingInterval time.Duration
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		origins[origin] = struct{}{}
	}
	return &HandlerSet{
		logger:       logger,
		game:         opts.Game,
		rateLimiter:  opts.RateLimiter,
		origins:      origins,
		pingInterval: ping,
	}
}

// Router builds the mux with every route attached.
func (h *HandlerSet) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestLogging)
	//1.- Routes sit on the root router so a method mismatch is reported as 405.
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.HandleFunc("/healthz", h.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/api/state", h.StateHandler()).Methods(http.MethodGet)
	r.HandleFunc("/api/actions/{action}", h.ActionHandler()).Methods(http.MethodPost)
	r.HandleFunc("/api/ws", h.StreamHandler())
	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method " + r.Method + " not allowed"})
}

// HealthHandler reports that the HTTP server is reachable.
func (h *HandlerSet) HealthHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "ok",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// StateHandler returns the current view.
func (h *HandlerSet) StateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.game == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "game unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, session.NewView(h.game.Snapshot(), h.now()))
	}
}

// ActionHandler applies the action named in the path and returns the view it produced.
func (h *HandlerSet) ActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context()).With(logging.String("handler", "action"))
		if h.game == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "game unavailable"})
			return
		}

		//1.- Resolve the action before touching the limiter so typos cost nothing.
		name := mux.Vars(r)["action"]
		cmd, err := commands.Parse(name)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}

		//2.- Manual saves and loads touch durable storage and are rate limited.
		switch cmd.Name() {
		case commands.NameSave, commands.NameLoad:
			if h.rateLimiter != nil && !h.rateLimiter.Allow() {
				wait := h.rateLimiter.RetryAfter()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				reqLogger.Warn("action denied: rate limit exceeded", logging.String("action", cmd.Name()))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
				return
			}
		}

		st, err := h.game.Do(r.Context(), cmd)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, session.ErrClosed):
				status = http.StatusServiceUnavailable
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				status = http.StatusGatewayTimeout
			}
			reqLogger.Warn("action failed", logging.String("action", cmd.Name()), logging.Error(err))
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		reqLogger.Debug("action applied", logging.String("action", cmd.Name()), logging.String("command_id", cmd.CommandID()))
		w.Header().Set("X-Command-ID", cmd.CommandID())
		writeJSON(w, http.StatusOK, session.NewView(st, h.now()))
	}
}

func (h *HandlerSet) now() time.Time {
	if h.game != nil && h.game.Clock() != nil {
		return h.game.Clock().Now()
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
