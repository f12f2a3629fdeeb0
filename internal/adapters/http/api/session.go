package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	service "github.com/okian/kitchenbeat/internal/app"
)

// SessionDependencies defines the interface for session control.
type SessionDependencies interface {
	Command(ctx context.Context, cmd service.Command) (service.View, error)
	Session() (service.View, error)
}

// SessionHandler handles session requests.
type SessionHandler struct {
	deps SessionDependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

// HandleGetSession handles GET /session requests.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	v, err := h.deps.Session()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleCommand handles POST /session/{command} requests.
func (h *SessionHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	const op = "api.session_command"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/session/")
	cmd, err := service.ParseCommand(name)
	if err != nil || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "unknown_command", Wrap(op, service.ErrUnknownCommand))
		return
	}
	v, err := h.deps.Command(r.Context(), cmd)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, v)
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", Wrap(op, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
