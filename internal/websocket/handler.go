package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessageTypeMetrics lets admin dashboards poll hub metrics over the socket
const MessageTypeMetrics = "metrics"

// TokenValidator resolves a bearer token to the user it was issued for
type TokenValidator interface {
	ValidateToken(tokenString string) (*models.User, error)
}

// Handler handles WebSocket HTTP upgrade requests
type Handler struct {
	hub            *Hub
	tokens         TokenValidator
	originPatterns []string
}

// NewHandler creates a new WebSocket handler. Empty originPatterns accepts any origin.
func NewHandler(hub *Hub, tokens TokenValidator, originPatterns []string) *Handler {
	return &Handler{
		hub:            hub,
		tokens:         tokens,
		originPatterns: originPatterns,
	}
}

// HandleWebSocket upgrades the request once the JWT from ?token= or the
// Authorization header has been validated.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	user, err := h.authenticateRequest(c)
	if err != nil {
		logger.Log.Warn("WebSocket auth failed", zap.Error(err), logger.WithIP(c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "authentication_failed",
			"message": err.Error(),
		})
		return
	}

	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionContextTakeover}
	if len(h.originPatterns) == 0 {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.originPatterns
	}

	// gin's writer refuses Hijack once Accept has written the 101 header.
	var w http.ResponseWriter = c.Writer
	if u, ok := w.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = u.Unwrap()
	}

	conn, err := websocket.Accept(w, c.Request, opts)
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, user.ID, user.Username, string(user.Role))
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	h.hub.Register(client)

	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "connected",
		Message: "Connected to GeoAware realtime",
		UserID:  client.UserID,
	}))

	go client.WritePump()
	client.ReadPump() // blocks until the client disconnects
}

func (h *Handler) authenticateRequest(c *gin.Context) (*models.User, error) {
	tokenString := c.Query("token")

	if header := c.GetHeader("Authorization"); header != "" {
		tokenString = strings.TrimPrefix(header, "Bearer ")
	}

	if tokenString == "" {
		return nil, errors.New("no authentication token provided")
	}
	if h.tokens == nil {
		return nil, errors.New("token validation unavailable")
	}

	user, err := h.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return user, nil
}

// HandleMetrics returns WebSocket metrics (admin monitoring)
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":    h.hub.GetMetrics(),
		"online_users": h.hub.GetOnlineUsers(),
		"clients":      h.hub.GetClients(),
		"timestamp":    time.Now().UTC(),
	})
}

// RegisterDefaultHandlers wires the message types clients may send besides ping/auth
func (h *Handler) RegisterDefaultHandlers() {
	h.hub.RegisterHandler(MessageTypeMetrics, func(client *Client, msg *Message) error {
		if client.Role != string(models.RoleAdmin) {
			client.SendError("forbidden", "Admin access required")
			return nil
		}
		return client.Send(NewReply(msg, MessageTypeMetrics, h.hub.GetMetrics()))
	})
}

// NotifyNewEvent pushes a freshly recorded tracking event to every dashboard
func (h *Handler) NotifyNewEvent(event *models.Event) {
	h.hub.Broadcast(NewMessage(MessageTypeEventNew, event))
}

// NotifyGeofenceChanged tells clients a fence was created, updated or deleted
func (h *Handler) NotifyGeofenceChanged(fenceID, action string) {
	h.hub.Broadcast(NewMessage(MessageTypeGeofenceChanged, GeofenceChangedPayload{
		FenceID: fenceID,
		Action:  action,
	}))
}

// NotifyAnalyticsInvalidated tells dashboards to refetch analytics
func (h *Handler) NotifyAnalyticsInvalidated(reason string) {
	h.hub.Broadcast(NewMessage(MessageTypeAnalyticsInvalidated, AnalyticsInvalidatedPayload{Reason: reason}))
}

// Shutdown gracefully shuts down the hub
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

// GetHub returns the underlying hub
func (h *Handler) GetHub() *Hub {
	return h.hub
}
