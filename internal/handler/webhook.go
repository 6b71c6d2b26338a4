// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/internal/whatsapp"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

// WebhookProcessor turns a webhook delivery into its acknowledgement.
type WebhookProcessor interface {
	Process(ctx context.Context, payload model.WebhookPayload) model.WebhookResult
}

// WebhookHandler handles the provider's webhook verification and
// delivery endpoints.
type WebhookHandler struct {
	pipeline    WebhookProcessor
	verifyToken string
	logger      *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(pipeline WebhookProcessor, verifyToken string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline:    pipeline,
		verifyToken: verifyToken,
		logger:      log,
	}
}

// Verify handles GET /webhook, the provider's subscription challenge.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := whatsapp.VerifyWebhook(
		q.Get("hub.mode"),
		q.Get("hub.verify_token"),
		q.Get("hub.challenge"),
		h.verifyToken,
	)
	if !ok {
		h.logger.Warnw("webhook verification rejected", "mode", q.Get("hub.mode"))
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// Receive handles POST /webhook. The provider retries non-200 answers,
// so every processing outcome is reported inside a 200 body.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload model.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusOK, model.WebhookResult{
			Status:  "error",
			Message: "invalid payload",
		})
		return
	}

	result := h.pipeline.Process(r.Context(), payload)
	writeJSON(w, http.StatusOK, result)
}
