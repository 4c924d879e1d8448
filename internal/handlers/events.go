package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/database"
	"github.com/geoaware/backend/internal/geo"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/metrics"
	"github.com/geoaware/backend/internal/models"
	"github.com/geoaware/backend/internal/telemetry"
	"github.com/geoaware/backend/internal/util"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxEventLimit = 1000

// CreateEventRequest is the body of POST /events
type CreateEventRequest struct {
	Type      models.EventType `json:"type" binding:"required"`
	UserID    string           `json:"userId" binding:"required"`
	FenceID   string           `json:"fenceId" binding:"required"`
	Location  json.RawMessage  `json:"location" binding:"required"`
	Timestamp string           `json:"timestamp" binding:"required"`
}

// parse validates the request without touching the database
func (r CreateEventRequest) parse(c *gin.Context) (*models.Event, bool) {
	if !r.Type.Valid() {
		respondFieldError(c, "type", "type must be one of entry, exit, content_view")
		return nil, false
	}
	if !util.IsValidUUID(r.UserID) {
		respondFieldError(c, "userId", "userId must be a UUID")
		return nil, false
	}
	if !util.IsValidUUID(r.FenceID) {
		respondFieldError(c, "fenceId", "fenceId must be a UUID")
		return nil, false
	}

	location, err := geo.ParseGeoJSON(r.Location)
	if err != nil {
		respondFieldError(c, "location", err.Error())
		return nil, false
	}
	if _, ok := location.T.(*geom.Point); !ok {
		respondFieldError(c, "location", "location must be a GeoJSON Point")
		return nil, false
	}

	ts, err := util.ParseTime(strings.TrimSpace(r.Timestamp))
	if err != nil || ts.IsZero() {
		respondFieldError(c, "timestamp", "timestamp must be ISO-8601")
		return nil, false
	}

	fenceID := r.FenceID
	return &models.Event{
		Type:      r.Type,
		UserID:    r.UserID,
		FenceID:   &fenceID,
		Location:  location,
		Timestamp: ts,
	}, true
}

// CreateEvent records an entry, exit or content view, pushes it to every
// connected client and drops cached analytics.
func (h *Handlers) CreateEvent(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	event, ok := req.parse(c)
	if !ok {
		return
	}

	ctx, span := h.tracer.TraceEventRecorded(c.Request.Context(), string(event.Type), event.UserID, *event.FenceID)
	var spanErr error
	defer func() { telemetry.EndSpan(span, spanErr) }()

	db := database.DB.WithContext(ctx)

	var userCount int64
	if spanErr = db.Model(&models.User{}).Where("id = ?", event.UserID).Count(&userCount).Error; spanErr != nil {
		util.RespondInternalError(c, "Failed to look up user")
		return
	}
	if userCount == 0 {
		util.RespondNotFound(c, "User")
		return
	}
	if !fenceExists(c, *event.FenceID) {
		return
	}

	if spanErr = db.Create(event).Error; spanErr != nil {
		logger.Log.Error("Failed to record event",
			logger.WithUserID(event.UserID),
			logger.WithFenceID(*event.FenceID),
			zap.Error(spanErr),
		)
		util.RespondInternalError(c, "Failed to record event")
		return
	}

	var created models.Event
	if spanErr = db.Preload("User").Preload("Fence").First(&created, "id = ?", event.ID).Error; spanErr != nil {
		util.HandleDBError(c, spanErr, "Event")
		return
	}

	metrics.RecordEvent(string(created.Type))
	logger.Log.Info("Event recorded",
		logger.WithEventType(string(created.Type)),
		logger.WithUserID(created.UserID),
		logger.WithFenceID(*created.FenceID),
	)

	if h.analytics != nil {
		h.analytics.Invalidate(ctx)
	}
	if h.wsHandler != nil {
		h.wsHandler.NotifyNewEvent(&created)
		h.wsHandler.NotifyAnalyticsInvalidated("event." + string(created.Type))
	}

	c.JSON(http.StatusCreated, created)
}

// ListEvents returns events newest first. Filters: userId, fenceId, type,
// from, to. Pagination through limit and offset is optional.
func (h *Handlers) ListEvents(c *gin.Context) {
	db := database.DB.WithContext(c.Request.Context()).Model(&models.Event{})

	if userID := c.Query("userId"); userID != "" {
		if !util.IsValidUUID(userID) {
			respondFieldError(c, "userId", "userId must be a UUID")
			return
		}
		db = db.Where("user_id = ?", userID)
	}
	if fenceID := c.Query("fenceId"); fenceID != "" {
		if !util.IsValidUUID(fenceID) {
			respondFieldError(c, "fenceId", "fenceId must be a UUID")
			return
		}
		db = db.Where("fence_id = ?", fenceID)
	}
	if typ := c.Query("type"); typ != "" {
		if !models.EventType(typ).Valid() {
			respondFieldError(c, "type", "type must be one of entry, exit, content_view")
			return
		}
		db = db.Where("type = ?", typ)
	}

	from, err := util.ParseTime(c.Query("from"))
	if err != nil {
		respondFieldError(c, "from", err.Error())
		return
	}
	to, err := util.ParseTime(c.Query("to"))
	if err != nil {
		respondFieldError(c, "to", err.Error())
		return
	}
	db = applyTimeRange(db, from, to)

	if raw := c.Query("limit"); raw != "" {
		limit := util.ParseInt(raw, 0)
		if limit <= 0 || limit > maxEventLimit {
			respondFieldError(c, "limit", "limit must be between 1 and 1000")
			return
		}
		db = db.Limit(limit)
	}
	if raw := c.Query("offset"); raw != "" {
		offset := util.ParseInt(raw, -1)
		if offset < 0 {
			respondFieldError(c, "offset", "offset must be a non-negative integer")
			return
		}
		db = db.Offset(offset)
	}

	var events []models.Event
	err = db.Preload("User").Preload("Fence").
		Order("timestamp DESC").
		Find(&events).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch events")
		return
	}
	c.JSON(http.StatusOK, events)
}

// applyTimeRange filters between from and to when both are set, otherwise
// by whichever bound is present.
func applyTimeRange(db *gorm.DB, from, to time.Time) *gorm.DB {
	switch {
	case !from.IsZero() && !to.IsZero():
		return db.Where("timestamp BETWEEN ? AND ?", from, to)
	case !from.IsZero():
		return db.Where("timestamp >= ?", from)
	case !to.IsZero():
		return db.Where("timestamp <= ?", to)
	}
	return db
}
