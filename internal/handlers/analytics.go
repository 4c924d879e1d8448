package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/analytics"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/util"
	"go.uber.org/zap"
)

// AnalyticsHeatmap returns the entry locations of the last 30 days as a
// GeoJSON FeatureCollection (admin only)
func (h *Handlers) AnalyticsHeatmap(c *gin.Context) {
	fc, err := h.analytics.Heatmap(c.Request.Context())
	if err != nil {
		logger.Log.Error("Heatmap failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to compute heatmap")
		return
	}
	c.JSON(http.StatusOK, fc)
}

// AnalyticsMetrics returns per-fence engagement metrics (admin only)
func (h *Handlers) AnalyticsMetrics(c *gin.Context) {
	out, err := h.analytics.Metrics(c.Request.Context())
	if err != nil {
		logger.Log.Error("Metrics failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to compute metrics")
		return
	}
	c.JSON(http.StatusOK, out)
}

// AnalyticsClustering returns the metrics labelled HOTSPOT, STANDARD or
// COLD (admin only)
func (h *Handlers) AnalyticsClustering(c *gin.Context) {
	out, err := h.analytics.Clustering(c.Request.Context())
	if errors.Is(err, analytics.ErrNotEnoughData) {
		util.RespondBadRequest(c, "Not enough data (min 3)")
		return
	} else if err != nil {
		logger.Log.Error("Clustering failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to compute clustering")
		return
	}
	c.JSON(http.StatusOK, out)
}
