package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/kitchenbeat/internal/domain/model"
)

const maxEventBody = 1 << 16

// EventDependencies defines the interface for event ingestion.
type EventDependencies interface {
	Ingest(ctx context.Context, msg model.Message) bool
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

func validateEvent(e model.WireMessage) error {
	switch {
	case strings.TrimSpace(e.Topic) == "":
		return errors.New("missing topic")
	case strings.TrimSpace(e.ActionID) == "":
		return errors.New("missing action_id")
	case e.NodeTimestamp == nil:
		return errors.New("missing node_timestamp")
	case *e.NodeTimestamp < 0:
		return errors.New("node_timestamp must not be negative")
	}
	return nil
}

// HandlePostEvent handles POST /events requests. Acceptance means the message
// was queued; matching happens asynchronously.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req model.WireMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validateEvent(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if !h.deps.Ingest(r.Context(), req.Message("", time.Now())) {
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
