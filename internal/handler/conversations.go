package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/whatsapp-platform/internal/middleware"
	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/internal/service"
	"github.com/capitalize-ai/whatsapp-platform/internal/store"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

// ContactGetter looks up the contact attached to a conversation.
type ContactGetter interface {
	GetByID(ctx context.Context, id string) (*model.Contact, error)
}

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service  *service.Conversations
	contacts ContactGetter
	logger   *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.Conversations, contacts ContactGetter, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service:  svc,
		contacts: contacts,
		logger:   log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := middleware.GetOrgID(ctx)

	filter := model.ConversationFilter{Limit: 20}
	q := r.URL.Query()

	if mode := q.Get("mode"); mode != "" {
		if err := middleware.ValidateMode(mode); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Mode = model.ConversationMode(mode)
	}
	if status := q.Get("status"); status != "" {
		if err := middleware.ValidateStatus(status); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = model.ConversationStatus(status)
	}
	if opened := q.Get("opened"); opened != "" {
		v := opened == "true"
		filter.Opened = &v
	}
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			filter.Limit = parsed
		}
	}
	if o := q.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}

	conversations, err := h.service.List(ctx, orgID, filter)
	if err != nil {
		h.logger.Errorw("failed to list conversations", "org_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, model.ListConversationsResponse{
		Conversations: conversations,
		Total:         len(conversations),
	})
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.Get(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Errorw("failed to get conversation", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}

	detail := model.ConversationDetail{Conversation: *conv}
	contact, err := h.contacts.GetByID(r.Context(), conv.ContactID)
	if err != nil {
		// The conversation itself is the payload; a missing contact row
		// only costs the embedded detail.
		h.logger.Warnw("failed to load contact for conversation",
			"conversation_id", conversationID,
			"contact_id", conv.ContactID,
			"error", err,
		)
	} else {
		detail.Contact = contact
	}

	writeJSON(w, http.StatusOK, detail)
}

// UpdateMode handles PUT /api/v1/conversations/{id}/mode
func (h *ConversationHandler) UpdateMode(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMode(string(req.Mode)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.SetMode(r.Context(), conversationID, req.Mode); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Errorw("failed to update mode", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update mode")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"conversation_id": conversationID,
		"mode":            string(req.Mode),
	})
}

// UpdateStatus handles PUT /api/v1/conversations/{id}/status
func (h *ConversationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateStatus(string(req.Status)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.SetStatus(r.Context(), conversationID, req.Status); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, store.ErrConversationActive):
			writeError(w, http.StatusConflict, "contact already has an active conversation")
		default:
			h.logger.Errorw("failed to update status", "conversation_id", conversationID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update status")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"conversation_id": conversationID,
		"status":          string(req.Status),
	})
}

// Claim handles POST /api/v1/conversations/{id}/claim
func (h *ConversationHandler) Claim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := middleware.GetUserID(ctx)
	if err := h.service.Claim(ctx, conversationID, userID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotAllowed):
			writeError(w, http.StatusForbidden, "not allowed to open this conversation")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		default:
			h.logger.Errorw("failed to claim conversation", "conversation_id", conversationID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to claim conversation")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"conversation_id": conversationID,
		"opened_by":       userID,
	})
}

// Release handles POST /api/v1/conversations/{id}/release
func (h *ConversationHandler) Release(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Release(r.Context(), conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Errorw("failed to release conversation", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to release conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"conversation_id": conversationID,
	})
}
