package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/whatsapp-platform/internal/middleware"
	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	natsclient "github.com/capitalize-ai/whatsapp-platform/internal/nats"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

// EventHandler serves stored conversation events so operator clients
// can catch up after a disconnect. Only mounted when the event stream
// is configured.
type EventHandler struct {
	stream *natsclient.StreamManager
	logger *logger.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(stream *natsclient.StreamManager, log *logger.Logger) *EventHandler {
	return &EventHandler{
		stream: stream,
		logger: log,
	}
}

// List handles GET /api/v1/conversations/{id}/events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var afterSequence uint64
	if a := r.URL.Query().Get("after"); a != "" {
		parsed, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after sequence")
			return
		}
		afterSequence = parsed
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	orgID := middleware.GetOrgID(ctx)
	events, lastSequence, hasMore, err := h.stream.ReplayEvents(ctx, orgID, conversationID, afterSequence, limit)
	if err != nil {
		h.logger.Errorw("failed to replay events", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to replay events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":        events,
		"last_sequence": lastSequence,
		"has_more":      hasMore,
	})
}
