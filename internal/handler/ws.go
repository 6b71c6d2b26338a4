package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/capitalize-ai/whatsapp-platform/internal/hub"
	"github.com/capitalize-ai/whatsapp-platform/internal/middleware"
	"github.com/capitalize-ai/whatsapp-platform/internal/rbac"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
	"github.com/capitalize-ai/whatsapp-platform/pkg/metrics"
)

const wsWriteTimeout = 10 * time.Second

// OrgLookup resolves the organization owning a conversation.
type OrgLookup interface {
	OrganizationID(ctx context.Context, conversationID string) (string, error)
}

// WSHandler upgrades operator clients to websocket connections watching
// a single conversation.
type WSHandler struct {
	hub       *hub.Hub
	orgs      OrgLookup
	access    rbac.Checker
	jwtSecret string
	logger    *logger.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(h *hub.Hub, orgs OrgLookup, access rbac.Checker, jwtSecret string, log *logger.Logger) *WSHandler {
	return &WSHandler{
		hub:       h,
		orgs:      orgs,
		access:    access,
		jwtSecret: jwtSecret,
		logger:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsConn adapts a websocket connection to the hub. Writes are
// serialized; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Watch handles GET /ws/conversations/{id}. Browsers cannot set headers
// on websocket requests, so the token also rides a query parameter.
func (h *WSHandler) Watch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		if cookie, err := r.Cookie("token"); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	claims, err := middleware.ParseToken(token, h.jwtSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	orgID, err := h.orgs.OrganizationID(ctx, conversationID)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	member, err := h.access.IsOrgMember(ctx, orgID, claims.Subject)
	if err != nil {
		h.logger.Errorw("failed to check membership",
			"org_id", orgID,
			"user_id", claims.Subject,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to check access")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a member of this organization")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	conn := &wsConn{conn: ws}
	h.hub.Register(conversationID, conn)
	metrics.IncrementWSConnections()
	h.logger.Infow("operator connected",
		"conversation_id", conversationID,
		"user_id", claims.Subject,
	)

	defer func() {
		h.hub.Unregister(conversationID, conn)
		metrics.DecrementWSConnections()
		_ = ws.Close()
		h.logger.Infow("operator disconnected",
			"conversation_id", conversationID,
			"user_id", claims.Subject,
		)
	}()

	// Inbound frames are not used; the read loop only detects
	// disconnects and answers pings.
	ws.SetReadLimit(4096)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
