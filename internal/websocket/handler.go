package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sekolahub/backend/internal/auth"
)

// Handler upgrades authenticated HTTP requests to WebSocket connections.
type Handler struct {
	hub            *Hub
	jwtService     *auth.JWTService
	messages       MessageReader
	logger         *zap.Logger
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

func NewHandler(hub *Hub, jwtService *auth.JWTService, messages MessageReader, logger *zap.Logger, allowedOrigins []string) *Handler {
	h := &Handler{
		hub:            hub,
		jwtService:     jwtService,
		messages:       messages,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	// The origin list never changes after construction, so the
	// upgrader is built once and shared by concurrent handshakes.
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, pattern := range h.allowedOrigins {
		if matchOrigin(pattern, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket authenticates the handshake and starts the client
// pumps. The token comes from the token query parameter or, for clients
// that can set headers, a bearer Authorization header.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, claims.TenantID, claims.Email, h.messages, h.logger)

	h.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

// GetOnlineUsers reports which users currently hold a live connection.
func (h *Handler) GetOnlineUsers(c *gin.Context) {
	ids := h.hub.OnlineUserIDs()
	c.JSON(http.StatusOK, gin.H{
		"online_users": ids,
		"count":        len(ids),
	})
}

// matchOrigin supports exact matches or wildcard patterns like *.example.com
func matchOrigin(pattern, origin string) bool {
	if pattern == origin {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		originHost := origin
		if u, err := url.Parse(origin); err == nil {
			originHost = u.Hostname()
		}
		patHost := strings.TrimPrefix(pattern, "*.")
		if strings.HasSuffix(originHost, patHost) {
			return true
		}
	}
	return false
}
