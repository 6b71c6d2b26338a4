package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/whatsapp-platform/internal/middleware"
	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/internal/service"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

// MessageHandler handles conversation message endpoints.
type MessageHandler struct {
	replies *service.Replies
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(replies *service.Replies, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		replies: replies,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 50
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	messages, total, err := h.replies.History(r.Context(), conversationID, limit, offset)
	if err != nil {
		h.logger.Errorw("failed to list messages", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: messages,
		Total:    total,
	})
}

// Create handles POST /api/v1/conversations/{id}/messages, the operator
// reply endpoint.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := middleware.GetUserID(ctx)
	if err := h.replies.Send(ctx, conversationID, userID, req.Content); err != nil {
		h.logger.Errorw("failed to send reply",
			"conversation_id", conversationID,
			"user_id", userID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to send reply")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"conversation_id": conversationID,
		"status":          "sent",
	})
}
