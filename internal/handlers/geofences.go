package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/database"
	"github.com/geoaware/backend/internal/geo"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/metrics"
	"github.com/geoaware/backend/internal/models"
	"github.com/geoaware/backend/internal/util"
	"go.uber.org/zap"
)

const (
	fenceCreated = "created"
	fenceUpdated = "updated"
	fenceDeleted = "deleted"
)

// GeofenceRequest is the body of create, replace and patch. For patches
// every field is optional.
type GeofenceRequest struct {
	Name     *string         `json:"name"`
	Geometry json.RawMessage `json:"geometry"`
	Metadata models.JSONMap  `json:"metadata"`
}

func (r GeofenceRequest) hasGeometry() bool {
	raw := strings.TrimSpace(string(r.Geometry))
	return raw != "" && raw != "null"
}

// parse validates the request; full requires name and geometry
func (r GeofenceRequest) parse(c *gin.Context, full bool) (map[string]interface{}, bool) {
	fields := map[string]interface{}{}

	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			respondFieldError(c, "name", "name cannot be empty")
			return nil, false
		}
		fields["name"] = name
	} else if full {
		respondFieldError(c, "name", "name is required")
		return nil, false
	}

	if r.hasGeometry() {
		g, err := geo.ParseGeoJSON(r.Geometry)
		if err != nil {
			respondFieldError(c, "geometry", err.Error())
			return nil, false
		}
		fields["geometry"] = g
	} else if full {
		respondFieldError(c, "geometry", "geometry is required")
		return nil, false
	}

	if r.Metadata != nil {
		fields["metadata"] = r.Metadata
	} else if full {
		fields["metadata"] = models.JSONMap{}
	}
	return fields, true
}

// CreateGeofence stores a new fence (admin only)
func (h *Handlers) CreateGeofence(c *gin.Context) {
	var req GeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	fields, ok := req.parse(c, true)
	if !ok {
		return
	}

	fence := models.Geofence{
		Name:     fields["name"].(string),
		Geometry: fields["geometry"].(geo.Geometry),
		Metadata: fields["metadata"].(models.JSONMap),
	}
	if err := database.DB.WithContext(c.Request.Context()).Create(&fence).Error; err != nil {
		logger.Log.Error("Failed to create geofence", zap.Error(err))
		util.RespondInternalError(c, "Failed to create geofence")
		return
	}

	h.fenceChanged(c.Request.Context(), fence.ID, fenceCreated)
	c.JSON(http.StatusCreated, fence)
}

// ListGeofences returns every fence with its content
func (h *Handlers) ListGeofences(c *gin.Context) {
	var fences []models.Geofence
	err := database.DB.WithContext(c.Request.Context()).
		Preload("Contents").
		Order("created_at ASC").
		Find(&fences).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch geofences")
		return
	}
	c.JSON(http.StatusOK, fences)
}

// GetGeofence returns one fence with its content
func (h *Handlers) GetGeofence(c *gin.Context) {
	id, ok := requireUUIDParam(c, "id")
	if !ok {
		return
	}

	var fence models.Geofence
	if err := database.DB.WithContext(c.Request.Context()).Preload("Contents").First(&fence, "id = ?", id).Error; err != nil {
		util.HandleDBError(c, err, "Geofence")
		return
	}
	c.JSON(http.StatusOK, fence)
}

// ReplaceGeofence overwrites name, geometry and metadata (admin only)
func (h *Handlers) ReplaceGeofence(c *gin.Context) {
	h.updateGeofence(c, true)
}

// PatchGeofence updates the provided fields (admin only)
func (h *Handlers) PatchGeofence(c *gin.Context) {
	h.updateGeofence(c, false)
}

func (h *Handlers) updateGeofence(c *gin.Context, full bool) {
	id, ok := requireUUIDParam(c, "id")
	if !ok {
		return
	}

	var req GeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	fields, ok := req.parse(c, full)
	if !ok {
		return
	}
	if len(fields) == 0 {
		util.RespondBadRequest(c, "no fields to update")
		return
	}

	db := database.DB.WithContext(c.Request.Context())
	result := db.Model(&models.Geofence{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		logger.Log.Error("Failed to update geofence", logger.WithFenceID(id), zap.Error(result.Error))
		util.RespondInternalError(c, "Failed to update geofence")
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "Geofence")
		return
	}

	var fence models.Geofence
	if err := db.Preload("Contents").First(&fence, "id = ?", id).Error; err != nil {
		util.HandleDBError(c, err, "Geofence")
		return
	}

	h.fenceChanged(c.Request.Context(), id, fenceUpdated)
	c.JSON(http.StatusOK, fence)
}

// DeleteGeofence removes a fence; its content goes with it while events
// keep a null fence reference (admin only).
func (h *Handlers) DeleteGeofence(c *gin.Context) {
	id, ok := requireUUIDParam(c, "id")
	if !ok {
		return
	}

	result := database.DB.WithContext(c.Request.Context()).Delete(&models.Geofence{}, "id = ?", id)
	if result.Error != nil {
		logger.Log.Error("Failed to delete geofence", logger.WithFenceID(id), zap.Error(result.Error))
		util.RespondInternalError(c, "Failed to delete geofence")
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "Geofence")
		return
	}

	h.fenceChanged(c.Request.Context(), id, fenceDeleted)
	c.Status(http.StatusNoContent)
}

// GeofencesContaining returns the fences whose geometry contains lat/lon
func (h *Handlers) GeofencesContaining(c *gin.Context) {
	lat, lon, err := util.ParseCoordinates(c.Query("lat"), c.Query("lon"))
	if err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var fences []models.Geofence
	err = database.DB.WithContext(c.Request.Context()).
		Where("ST_Contains(geometry, ST_SetSRID(ST_MakePoint(?, ?), 4326))", lon, lat).
		Preload("Contents").
		Find(&fences).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to query geofences")
		return
	}
	c.JSON(http.StatusOK, fences)
}

// fenceChanged records the change and tells connected clients. Cached
// analytics depend on the fence list, so they are dropped as well.
func (h *Handlers) fenceChanged(ctx context.Context, fenceID, action string) {
	metrics.RecordGeofenceChange(action)
	logger.Log.Info("Geofence changed", logger.WithFenceID(fenceID), zap.String("action", action))

	if h.analytics != nil {
		h.analytics.Invalidate(ctx)
	}
	if h.wsHandler != nil {
		h.wsHandler.NotifyGeofenceChanged(fenceID, action)
		h.wsHandler.NotifyAnalyticsInvalidated("geofence." + action)
	}
}
