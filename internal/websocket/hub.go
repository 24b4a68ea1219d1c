package websocket

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/sekolahub/backend/internal/cache"
	"github.com/sekolahub/backend/internal/models"
)

// Hub tracks live connections keyed by user id, with a tenant index for
// tenant-wide fan-out. One connection per user; a newer connection for
// the same user replaces the older one.
type Hub struct {
	clients map[int64]*Client
	tenants map[int64]map[int64]*Client

	register   chan *Client
	unregister chan *Client

	redis  *cache.RedisClient
	logger *zap.Logger

	mu sync.RWMutex
}

func NewHub(redis *cache.RedisClient, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]*Client),
		tenants:    make(map[int64]map[int64]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		redis:      redis,
		logger:     logger,
	}
}

// Run owns the registry maps. Peers on other server instances are
// reached through the redis notify channel, which Run also bridges.
func (h *Hub) Run() {
	go h.subscribeToNotifications()

	for {
		select {
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// add indexes a client, replacing any older connection for the same user,
// then asks it to refresh its unread badge.
func (h *Hub) add(client *Client) {
	h.mu.Lock()
	if old, ok := h.clients[client.userID]; ok {
		h.detachLocked(old)
		close(old.send)
	}
	h.clients[client.userID] = client
	if h.tenants[client.tenantID] == nil {
		h.tenants[client.tenantID] = make(map[int64]*Client)
	}
	h.tenants[client.tenantID][client.userID] = client
	h.mu.Unlock()

	h.logger.Debug("websocket client registered",
		zap.Int64("user_id", client.userID),
		zap.Int64("tenant_id", client.tenantID))

	// The client answers fetchUnreadCount with getUnreadCount, which
	// pushes the current total back over this connection.
	client.sendEvent(models.EventFetchUnreadCount, nil)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.userID]; ok && current == client {
		h.detachLocked(client)
		close(client.send)
	}
	h.mu.Unlock()

	h.logger.Debug("websocket client unregistered",
		zap.Int64("user_id", client.userID))
}

// detachLocked removes a client from both indexes. Callers hold h.mu.
func (h *Hub) detachLocked(client *Client) {
	delete(h.clients, client.userID)
	if byUser, ok := h.tenants[client.tenantID]; ok {
		delete(byUser, client.userID)
		if len(byUser) == 0 {
			delete(h.tenants, client.tenantID)
		}
	}
}

// subscribeToNotifications bridges the redis notify channel into the
// local registry so every server instance delivers to its own sockets.
func (h *Hub) subscribeToNotifications() {
	pubsub := h.redis.SubscribeToNotifications()
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var notification models.Notification
		if err := json.Unmarshal([]byte(msg.Payload), &notification); err != nil {
			h.logger.Warn("dropping malformed notification", zap.Error(err))
			continue
		}

		event := models.WSMessage{
			Event:   notification.Event,
			Payload: notification.Payload,
		}

		switch notification.Scope {
		case models.ScopeUser:
			h.SendToUser(notification.UserID, event)
		case models.ScopeTenant:
			h.SendToTenant(notification.TenantID, event)
		default:
			h.logger.Warn("dropping notification with unknown scope",
				zap.String("scope", string(notification.Scope)))
		}
	}
}

// SendToUser delivers to the user's live connection, if any. A full send
// buffer drops the event rather than blocking the hub.
func (h *Hub) SendToUser(userID int64, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to encode websocket message", zap.Error(err))
		return
	}

	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if ok {
		select {
		case client.send <- data:
		default:
		}
	}
}

// SendToTenant delivers to every live connection of a tenant.
func (h *Hub) SendToTenant(tenantID int64, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to encode websocket message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.tenants[tenantID] {
		select {
		case client.send <- data:
		default:
		}
	}
}

// OnlineUserIDs returns the ids of users with a live connection.
func (h *Hub) OnlineUserIDs() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]int64, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) IsUserOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[userID]
	return ok
}
