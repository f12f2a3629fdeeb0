// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/kitchenbeat/internal/adapters/repository"
	service "github.com/okian/kitchenbeat/internal/app"
	"github.com/okian/kitchenbeat/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ingest pushes a raw node message for normalization. Returns false when
	// input is not accepted.
	Ingest(ctx context.Context, msg model.Message) bool

	// Session control.
	Command(ctx context.Context, cmd service.Command) (service.View, error)
	Session() (service.View, error)

	// Read operations expose scoreboard data.
	TopN(ctx context.Context, n int) ([]Standing, error)
	Rank(ctx context.Context, track string) (Standing, error)

	Stats(ctx context.Context) service.Stats
	Stream() http.Handler
}

// Standing mirrors the read shape returned by scoreboard queries.
type Standing = repository.Standing

// Server wires HTTP routes for the game API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	eventsHandler     *EventsHandler
	sessionHandler    *SessionHandler
	scoreboardHandler *ScoreboardHandler
	rankHandler       *RankHandler
	deps              Dependencies
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, maxLimit int) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(deps),
		eventsHandler:     NewEventsHandler(deps),
		sessionHandler:    NewSessionHandler(deps),
		scoreboardHandler: NewScoreboardHandler(deps, maxLimit),
		rankHandler:       NewRankHandler(deps),
		deps:              deps,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("/session", MetricsMiddleware(s.sessionHandler.HandleGetSession, "session"))
	mux.HandleFunc("/session/", MetricsMiddleware(s.sessionHandler.HandleCommand, "session_command"))
	mux.HandleFunc("/scoreboard", MetricsMiddleware(s.scoreboardHandler.HandleGetScoreboard, "scoreboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	// The stream hijacks the connection, so it bypasses the metrics wrapper.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.deps.Stream().ServeHTTP(w, r)
	})
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
