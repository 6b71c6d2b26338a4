// Package whatsapp implements the WhatsApp Cloud API surface: the
// outbound Graph client and the inbound webhook pipeline.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
	"github.com/capitalize-ai/whatsapp-platform/pkg/metrics"
)

// Media is a downloaded inbound attachment.
type Media struct {
	Data     []byte
	MimeType string
}

// Client sends messages and fetches media through the WhatsApp Cloud API.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *logger.Logger
}

// NewClient creates a Graph API client. baseURL is the versioned API
// root, e.g. https://graph.facebook.com/v24.0.
func NewClient(baseURL, accessToken string, log *logger.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      log,
	}
}

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

// SendText delivers a text message from the given business phone number
// id to the recipient phone number.
func (c *Client) SendText(ctx context.Context, phoneNumberID, to, body string) error {
	payload := textPayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimPrefix(to, "+"),
		Type:             "text",
	}
	payload.Text.PreviewURL = true
	payload.Text.Body = body

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.OutboundSendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.OutboundSendsTotal.WithLabelValues("error").Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Errorw("message send rejected",
			"status", resp.StatusCode,
			"phone_number_id", phoneNumberID,
			"response", string(detail),
		)
		return fmt.Errorf("send returned status %d", resp.StatusCode)
	}

	metrics.OutboundSendsTotal.WithLabelValues("ok").Inc()
	return nil
}

// DownloadMedia fetches an inbound attachment by media id. The Cloud API
// requires two calls: resolve the short-lived media URL, then download
// the bytes with the same credentials.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) (Media, error) {
	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s", c.baseURL, mediaID), &meta); err != nil {
		return Media{}, fmt.Errorf("failed to resolve media url: %w", err)
	}
	if meta.URL == "" {
		return Media{}, fmt.Errorf("media %s has no download url", mediaID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return Media{}, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Media{}, fmt.Errorf("media download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Media{}, fmt.Errorf("failed to read media body: %w", err)
	}
	return Media{Data: data, MimeType: meta.MimeType}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("request returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// VerifyWebhook checks a hub challenge request and returns the challenge
// to echo back, or false when mode or token do not match.
func VerifyWebhook(mode, token, challenge, verifyToken string) (string, bool) {
	if mode == "subscribe" && token == verifyToken {
		return challenge, true
	}
	return "", false
}
