package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sekolahub/backend/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 10240 // 10KB
)

// MessageReader is what a client connection needs from the message
// service to answer inbound events.
type MessageReader interface {
	MarkAsRead(id uuid.UUID, tenantID, userID int64) error
	UnreadCount(tenantID, userID int64) (int, error)
}

// Client is one authenticated WebSocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   int64
	tenantID int64
	email    string

	messages MessageReader
	logger   *zap.Logger

	// simple token-bucket rate limiter
	tokens       int
	maxTokens    int
	refillPeriod time.Duration
	lastRefill   time.Time
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, tenantID int64, email string, messages MessageReader, logger *zap.Logger) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		userID:       userID,
		tenantID:     tenantID,
		email:        email,
		messages:     messages,
		logger:       logger,
		tokens:       20,
		maxTokens:    20,
		refillPeriod: time.Second,
		lastRefill:   time.Now(),
	}
}

// ReadPump pumps inbound events from the connection to their handlers.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error",
					zap.Int64("user_id", c.userID),
					zap.Error(err))
			}
			break
		}

		now := time.Now()
		elapsed := now.Sub(c.lastRefill)
		if elapsed >= c.refillPeriod {
			c.tokens += int(elapsed / c.refillPeriod)
			if c.tokens > c.maxTokens {
				c.tokens = c.maxTokens
			}
			c.lastRefill = now
		}

		if c.tokens <= 0 {
			c.sendError("rate_limited")
			continue
		}
		c.tokens--

		c.handleMessage(message)
	}
}

// WritePump pumps hub deliveries to the connection and keeps it alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var wsMsg models.WSMessage
	if err := json.Unmarshal(data, &wsMsg); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch wsMsg.Event {
	case models.EventGetUnreadCount:
		c.pushUnreadCount()

	case models.EventMarkAsRead:
		c.handleMarkAsRead(wsMsg.Payload)

	default:
		c.sendError("unknown event type")
	}
}

// pushUnreadCount sends the caller's current unread total.
func (c *Client) pushUnreadCount() {
	count, err := c.messages.UnreadCount(c.tenantID, c.userID)
	if err != nil {
		c.logger.Warn("failed to load unread count",
			zap.Int64("user_id", c.userID),
			zap.Error(err))
		c.sendError("failed to load unread count")
		return
	}

	c.sendEvent(models.EventUnreadCount, map[string]interface{}{"count": count})
}

func (c *Client) handleMarkAsRead(payload interface{}) {
	data, _ := json.Marshal(payload)
	var req models.WSMarkReadPayload
	if err := json.Unmarshal(data, &req); err != nil || req.MessageID == uuid.Nil {
		c.sendError("invalid markAsRead payload")
		return
	}

	if err := c.messages.MarkAsRead(req.MessageID, c.tenantID, c.userID); err != nil {
		c.sendError("failed to mark message as read")
		return
	}
	// Read receipts and unread totals fan out through the notify
	// channel, so there is nothing more to send here.
}

func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := json.Marshal(models.WSMessage{Event: event, Payload: payload})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(message string) {
	c.sendEvent(models.EventError, models.WSErrorPayload{Message: message})
}
