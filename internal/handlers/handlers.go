package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/analytics"
	apierrors "github.com/geoaware/backend/internal/errors"
	"github.com/geoaware/backend/internal/privacy"
	"github.com/geoaware/backend/internal/telemetry"
	"github.com/geoaware/backend/internal/util"
	"github.com/geoaware/backend/internal/websocket"
)

// Handlers contains the HTTP handlers for the domain API
type Handlers struct {
	analytics *analytics.Service
	privacy   *privacy.Simulator
	wsHandler *websocket.Handler
	tracer    *telemetry.BusinessEvents
}

// NewHandlers creates a new handlers instance
func NewHandlers(analyticsService *analytics.Service, simulator *privacy.Simulator) *Handlers {
	return &Handlers{
		analytics: analyticsService,
		privacy:   simulator,
		tracer:    telemetry.NewBusinessEvents(),
	}
}

// SetWebSocketHandler enables realtime notifications
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler) {
	h.wsHandler = ws
}

// respondFieldError sends a 400 bound to a request field
func respondFieldError(c *gin.Context, field, message string) {
	apiErr := apierrors.BadRequest(message)
	apiErr.Field = field
	util.RespondWithAPIError(c, apiErr)
}

// requireUUIDParam reads a UUID path parameter, responding 400 when malformed
func requireUUIDParam(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if !util.IsValidUUID(id) {
		respondFieldError(c, name, "invalid "+name)
		return "", false
	}
	return id, true
}
