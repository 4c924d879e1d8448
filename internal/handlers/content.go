package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/database"
	apierrors "github.com/geoaware/backend/internal/errors"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/models"
	"github.com/geoaware/backend/internal/util"
	"go.uber.org/zap"
)

// ContentMetaRequest is the body of create and patch. For patches every
// field is optional.
type ContentMetaRequest struct {
	FenceID    *string `json:"fenceId"`
	Type       *string `json:"type"`
	Descriptor *string `json:"descriptor"`
	RepoURL    *string `json:"repoUrl"`
}

func (r ContentMetaRequest) parse(c *gin.Context, full bool) (map[string]interface{}, bool) {
	fields := map[string]interface{}{}

	text := []struct {
		field  string
		column string
		value  *string
	}{
		{"fenceId", "fence_id", r.FenceID},
		{"type", "type", r.Type},
		{"descriptor", "descriptor", r.Descriptor},
		{"repoUrl", "repo_url", r.RepoURL},
	}
	for _, t := range text {
		if t.value == nil {
			if full {
				respondFieldError(c, t.field, t.field+" is required")
				return nil, false
			}
			continue
		}
		v := strings.TrimSpace(*t.value)
		if v == "" {
			respondFieldError(c, t.field, t.field+" cannot be empty")
			return nil, false
		}
		fields[t.column] = v
	}

	if id, ok := fields["fence_id"].(string); ok && !util.IsValidUUID(id) {
		respondFieldError(c, "fenceId", "fenceId must be a UUID")
		return nil, false
	}
	if raw, ok := fields["repo_url"].(string); ok {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			respondFieldError(c, "repoUrl", "repoUrl must be an absolute URL")
			return nil, false
		}
	}
	return fields, true
}

// fenceExists responds 404 and returns false when the fence is missing
func fenceExists(c *gin.Context, fenceID string) bool {
	var count int64
	if err := database.DB.WithContext(c.Request.Context()).Model(&models.Geofence{}).Where("id = ?", fenceID).Count(&count).Error; err != nil {
		util.RespondInternalError(c, "Failed to look up geofence")
		return false
	}
	if count == 0 {
		util.RespondNotFound(c, "Geofence")
		return false
	}
	return true
}

// CreateContentMeta attaches content to a fence (admin only)
func (h *Handlers) CreateContentMeta(c *gin.Context) {
	var req ContentMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	fields, ok := req.parse(c, true)
	if !ok {
		return
	}
	if !fenceExists(c, fields["fence_id"].(string)) {
		return
	}

	meta := models.ContentMeta{
		FenceID:    fields["fence_id"].(string),
		Type:       fields["type"].(string),
		Descriptor: fields["descriptor"].(string),
		RepoURL:    fields["repo_url"].(string),
	}
	if err := database.DB.WithContext(c.Request.Context()).Create(&meta).Error; err != nil {
		logger.Log.Error("Failed to create content meta", logger.WithFenceID(meta.FenceID), zap.Error(err))
		util.RespondInternalError(c, "Failed to create content")
		return
	}
	c.JSON(http.StatusCreated, meta)
}

// ListContentMeta returns every content entry with its fence
func (h *Handlers) ListContentMeta(c *gin.Context) {
	var metas []models.ContentMeta
	err := database.DB.WithContext(c.Request.Context()).
		Preload("Fence").
		Order("created_at ASC").
		Find(&metas).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch content")
		return
	}
	c.JSON(http.StatusOK, metas)
}

// ContentByCoords returns the content of the first fence covering lat/lon
func (h *Handlers) ContentByCoords(c *gin.Context) {
	lat, lon, err := util.ParseCoordinates(c.Query("lat"), c.Query("lon"))
	if err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var fence models.Geofence
	err = database.DB.WithContext(c.Request.Context()).
		Where("ST_Covers(geometry, ST_SetSRID(ST_MakePoint(?, ?), 4326))", lon, lat).
		Preload("Contents").
		Order("created_at ASC").
		First(&fence).Error
	if isNotFound(err) {
		util.RespondWithAPIError(c, apierrors.NotFoundMessage("No fence found for given coordinates"))
		return
	} else if err != nil {
		util.RespondInternalError(c, "Failed to query geofences")
		return
	}

	contents := fence.Contents
	if contents == nil {
		contents = []models.ContentMeta{}
	}
	c.JSON(http.StatusOK, contents)
}

// GetContentMeta returns one content entry
func (h *Handlers) GetContentMeta(c *gin.Context) {
	id, ok := requireUUIDParam(c, "id")
	if !ok {
		return
	}

	var meta models.ContentMeta
	if err := database.DB.WithContext(c.Request.Context()).Preload("Fence").First(&meta, "id = ?", id).Error; err != nil {
		util.HandleDBError(c, err, "Content")
		return
	}
	c.JSON(http.StatusOK, meta)
}

// RedirectContent sends the client to the blob in the content repository
func (h *Handlers) RedirectContent(c *gin.Context) {
	id, ok := requireUUIDParam(c, "id")
	if !ok {
		return
	}

	var meta models.ContentMeta
	if err := database.DB.WithContext(c.Request.Context()).Select("id, repo_url").First(&meta, "id = ?", id).Error; err != nil {
		util.HandleDBError(c, err, "Content")
		return
	}
	c.Redirect(http.StatusFound, meta.RepoURL)
}

// PatchContentMeta updates the provided fields (admin only)
func (h *Handlers) PatchContentMeta(c *gin.Context) {
	id, ok := requireUUIDParam(c, "id")
	if !ok {
		return
	}

	var req ContentMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	fields, ok := req.parse(c, false)
	if !ok {
		return
	}
	if len(fields) == 0 {
		util.RespondBadRequest(c, "no fields to update")
		return
	}
	if fenceID, ok := fields["fence_id"].(string); ok && !fenceExists(c, fenceID) {
		return
	}

	db := database.DB.WithContext(c.Request.Context())
	result := db.Model(&models.ContentMeta{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		util.RespondInternalError(c, "Failed to update content")
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "Content")
		return
	}

	var meta models.ContentMeta
	if err := db.First(&meta, "id = ?", id).Error; err != nil {
		util.HandleDBError(c, err, "Content")
		return
	}
	c.JSON(http.StatusOK, meta)
}

// DeleteContentMeta removes a content entry (admin only)
func (h *Handlers) DeleteContentMeta(c *gin.Context) {
	id, ok := requireUUIDParam(c, "id")
	if !ok {
		return
	}

	result := database.DB.WithContext(c.Request.Context()).Delete(&models.ContentMeta{}, "id = ?", id)
	if result.Error != nil {
		util.RespondInternalError(c, "Failed to delete content")
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "Content")
		return
	}
	c.Status(http.StatusNoContent)
}
