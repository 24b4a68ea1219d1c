package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sekolahub/backend/internal/models"
)

func testHub() *Hub {
	return &Hub{
		clients:    make(map[int64]*Client),
		tenants:    make(map[int64]map[int64]*Client),
		register:   make(chan *Client, 1),
		unregister: make(chan *Client, 1),
		logger:     zap.NewNop(),
	}
}

func attach(h *Hub, userID, tenantID int64) *Client {
	c := &Client{userID: userID, tenantID: tenantID, send: make(chan []byte, 4)}
	h.clients[userID] = c
	if h.tenants[tenantID] == nil {
		h.tenants[tenantID] = make(map[int64]*Client)
	}
	h.tenants[tenantID][userID] = c
	return c
}

func expectEvent(t *testing.T, c *Client, key, want string) {
	t.Helper()
	select {
	case b := <-c.send:
		var got map[string]string
		json.Unmarshal(b, &got)
		if got[key] != want {
			t.Fatalf("unexpected payload: %v", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timed out waiting for delivery")
	}
}

func TestHubSendToUser(t *testing.T) {
	h := testHub()
	c1 := attach(h, 101, 7)
	c2 := attach(h, 102, 7)

	h.SendToUser(101, map[string]string{"hello": "world"})

	expectEvent(t, c1, "hello", "world")

	select {
	case b := <-c2.send:
		t.Fatalf("user 102 should not receive user 101's message, got %s", b)
	default:
	}
}

func TestHubSendToTenant(t *testing.T) {
	h := testHub()
	c1 := attach(h, 101, 7)
	c2 := attach(h, 102, 7)
	other := attach(h, 201, 8)

	h.SendToTenant(7, map[string]string{"ping": "pong"})

	expectEvent(t, c1, "ping", "pong")
	expectEvent(t, c2, "ping", "pong")

	select {
	case b := <-other.send:
		t.Fatalf("tenant 8 should not receive tenant 7's message, got %s", b)
	default:
	}
}

func TestHubAddRequestsUnreadRefresh(t *testing.T) {
	h := testHub()
	c := &Client{userID: 101, tenantID: 7, send: make(chan []byte, 4)}

	h.add(c)

	if !h.IsUserOnline(101) {
		t.Error("client not indexed after add")
	}

	select {
	case b := <-c.send:
		var got models.WSMessage
		json.Unmarshal(b, &got)
		if got.Event != models.EventFetchUnreadCount {
			t.Fatalf("first event = %q, want %q", got.Event, models.EventFetchUnreadCount)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no unread refresh request after registration")
	}
}

func TestHubAddReplacesOlderConnection(t *testing.T) {
	h := testHub()
	first := &Client{userID: 101, tenantID: 7, send: make(chan []byte, 4)}
	second := &Client{userID: 101, tenantID: 7, send: make(chan []byte, 4)}

	h.add(first)
	h.add(second)

	if h.clients[101] != second {
		t.Error("newer connection should replace the older one")
	}
	// Drain the refresh request queued on first's registration; the
	// channel must be closed behind it.
	<-first.send
	if _, open := <-first.send; open {
		t.Error("older connection's send channel should be closed")
	}
}

func TestHubOnlineTracking(t *testing.T) {
	h := testHub()
	attach(h, 101, 7)

	if !h.IsUserOnline(101) {
		t.Fatal("expected user 101 to be online")
	}
	if h.IsUserOnline(999) {
		t.Fatal("expected user 999 to be offline")
	}
	if got := len(h.OnlineUserIDs()); got != 1 {
		t.Fatalf("expected 1 online user, got %d", got)
	}
}
