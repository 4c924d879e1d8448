package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type staticTokens map[string]*models.User

func (s staticTokens) ValidateToken(token string) (*models.User, error) {
	if u, ok := s[token]; ok {
		return u, nil
	}
	return nil, errors.New("unknown token")
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.allClients)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.unicast)
	assert.NotNil(t, hub.metrics)
	assert.NotNil(t, hub.handlers)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(5, 10)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow(), "Request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow(), "Request 11 should be denied")

	time.Sleep(300 * time.Millisecond)
	assert.True(t, rl.Allow(), "Request after wait should be allowed")
}

func TestNewReplyAndError(t *testing.T) {
	original := NewMessageWithID(MessageTypePing, "original-id", nil)
	reply := NewReply(original, MessageTypePong, nil)
	assert.Equal(t, MessageTypePong, reply.Type)
	assert.Equal(t, "original-id", reply.ReplyTo)

	msg := NewErrorMessage("test_error", "Something went wrong")
	payload, ok := msg.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "test_error", payload.Code)
}

func TestMessageParsePayload(t *testing.T) {
	msg := NewMessage(MessageTypePing, map[string]interface{}{
		"client_time": float64(1234567890),
	})

	var ping PingPayload
	require.NoError(t, msg.ParsePayload(&ping))
	assert.Equal(t, int64(1234567890), ping.ClientTime)

	assert.Error(t, NewMessage(MessageTypePing, nil).ParsePayload(&ping))
}

func TestFlexibleTime(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ping","timestamp":1700000000000}`), &msg))
	assert.Equal(t, int64(1700000000000), msg.Timestamp.UnixMilli())

	require.NoError(t, json.Unmarshal([]byte(`{"type":"ping","timestamp":"2024-05-01T10:00:00Z"}`), &msg))
	assert.Equal(t, 2024, msg.Timestamp.Year())

	assert.Error(t, json.Unmarshal([]byte(`{"type":"ping","timestamp":true}`), &msg))
}

func TestHubBroadcastAndUnicast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown(context.Background())

	alice := NewClient(hub, nil, "alice", "alice", "user")
	bob := NewClient(hub, nil, "bob", "bob", "admin")
	hub.Register(alice)
	hub.Register(bob)

	assert.Eventually(t, func() bool { return hub.IsUserOnline("alice") && hub.IsUserOnline("bob") },
		time.Second, 10*time.Millisecond)

	hub.Broadcast(NewMessage(MessageTypeAnalyticsInvalidated, AnalyticsInvalidatedPayload{Reason: "event"}))
	for _, c := range []*Client{alice, bob} {
		select {
		case data := <-c.send:
			assert.Contains(t, string(data), `"type":"analytics.invalidated"`)
		case <-time.After(time.Second):
			t.Fatalf("client %s did not receive broadcast", c.UserID)
		}
	}

	hub.SendToUser("bob", NewMessage(MessageTypeSystem, SystemPayload{Event: "hello"}))
	select {
	case data := <-bob.send:
		assert.Contains(t, string(data), "hello")
	case <-time.After(time.Second):
		t.Fatal("bob did not receive unicast")
	}
	assert.Len(t, alice.send, 0)

	hub.Unregister(alice)
	assert.Eventually(t, func() bool { return !hub.IsUserOnline("alice") }, time.Second, 10*time.Millisecond)
	_, open := <-alice.send
	assert.False(t, open)
	assert.Equal(t, int64(1), hub.GetMetrics().ActiveConnections)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown(context.Background())

	slow := NewClient(hub, nil, "slow", "slow", "user")
	hub.Register(slow)
	assert.Eventually(t, func() bool { return hub.IsUserOnline("slow") }, time.Second, 10*time.Millisecond)

	for i := 0; i < sendBufferSize+1; i++ {
		hub.Broadcast(NewMessage(MessageTypeSystem, nil))
	}

	assert.Eventually(t, func() bool { return !hub.IsUserOnline("slow") }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), hub.GetMetrics().ConnectionsDropped)
}

func TestHubShutdownClosesClientsOnce(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := NewClient(hub, nil, "u1", "u1", "user")
	hub.Register(c)
	assert.Eventually(t, func() bool { return hub.IsUserOnline("u1") }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	// shutdown notice then closed channel
	data, ok := <-c.send
	assert.True(t, ok)
	assert.Contains(t, string(data), "server_shutdown")
	_, ok = <-c.send
	assert.False(t, ok)

	assert.NotPanics(t, c.closeSend)
	assert.Empty(t, hub.GetOnlineUsers())
}

func TestHubRegisterHandler(t *testing.T) {
	hub := NewHub()
	hub.RegisterHandler("test_type", func(client *Client, msg *Message) error { return nil })

	handler, ok := hub.GetHandler("test_type")
	assert.True(t, ok)
	assert.NotNil(t, handler)

	_, ok = hub.GetHandler("nonexistent")
	assert.False(t, ok)
}

func TestClientHandleMessage(t *testing.T) {
	hub := NewHub()
	h := NewHandler(hub, nil, nil)
	h.RegisterDefaultHandlers()

	user := NewClient(hub, nil, "u1", "u1", "user")
	admin := NewClient(hub, nil, "a1", "a1", "admin")

	user.handleMessage(NewMessageWithID(MessageTypePing, "p1", PingPayload{ClientTime: time.Now().UnixMilli()}))
	data := <-user.send
	var pong Message
	require.NoError(t, json.Unmarshal(data, &pong))
	assert.Equal(t, MessageTypePong, pong.Type)
	assert.Equal(t, "p1", pong.ReplyTo)

	user.handleMessage(NewMessage("bogus", nil))
	assert.Contains(t, string(<-user.send), "unknown_type")

	user.handleMessage(NewMessage(MessageTypeMetrics, nil))
	assert.Contains(t, string(<-user.send), "forbidden")

	admin.handleMessage(NewMessage(MessageTypeMetrics, nil))
	assert.Contains(t, string(<-admin.send), "total_connections")
}

func TestMetricsSnapshotString(t *testing.T) {
	str := NewHub().GetMetrics().String()
	assert.Contains(t, str, "connections=0/0")
}

func TestHandleWebSocketRejectsMissingToken(t *testing.T) {
	h := NewHandler(NewHub(), staticTokens{}, nil)
	r := gin.New()
	r.GET("/ws", h.HandleWebSocket)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token=nope", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebSocketEndToEnd(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown(context.Background())

	tokens := staticTokens{"good": {ID: "user-1", Username: "ana", Role: models.RoleAdmin}}
	h := NewHandler(hub, tokens, nil)
	r := gin.New()
	r.GET("/ws", h.HandleWebSocket)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=good"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var welcome Message
	require.NoError(t, wsjson.Read(ctx, conn, &welcome))
	assert.Equal(t, MessageTypeSystem, welcome.Type)

	fence := "fence-1"
	h.NotifyNewEvent(&models.Event{ID: "ev-1", Type: models.EventEntry, UserID: "user-1", FenceID: &fence})

	var got map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, MessageTypeEventNew, got["type"])
	payload := got["payload"].(map[string]interface{})
	assert.Equal(t, "ev-1", payload["id"])
	assert.Equal(t, "fence-1", payload["fenceId"])

	h.NotifyAnalyticsInvalidated("event.entry")
	var invalidated Message
	require.NoError(t, wsjson.Read(ctx, conn, &invalidated))
	assert.Equal(t, MessageTypeAnalyticsInvalidated, invalidated.Type)
	var reason AnalyticsInvalidatedPayload
	require.NoError(t, invalidated.ParsePayload(&reason))
	assert.Equal(t, "event.entry", reason.Reason)

	clients := hub.GetClients()
	require.Len(t, clients, 1)
	assert.Equal(t, "ana", clients[0].Username)
	assert.Equal(t, "admin", clients[0].Role)
}

func TestClientInfoAndClose(t *testing.T) {
	c := NewClient(NewHub(), nil, "user-2", "bea", "user")
	c.RemoteAddr = "10.0.0.7"

	info := c.GetInfo()
	assert.Equal(t, "user-2", info.UserID)
	assert.Equal(t, "bea", info.Username)
	assert.Equal(t, "10.0.0.7", info.RemoteAddr)
	assert.False(t, c.IsClosed())

	c.Close()
	assert.True(t, c.IsClosed())
	assert.Error(t, c.Send(NewMessage(MessageTypeSystem, nil)))
}
