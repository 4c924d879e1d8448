package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/privacy"
	"github.com/geoaware/backend/internal/util"
	"go.uber.org/zap"
)

// SimulatePrivacy runs a cloaking simulation over one fence (admin only)
func (h *Handlers) SimulatePrivacy(c *gin.Context) {
	fenceID, ok := requireUUIDParam(c, "fenceId")
	if !ok {
		return
	}

	iterations := privacy.DefaultIterations
	if raw := c.Query("iterations"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > privacy.MaxIterations {
			respondFieldError(c, "iterations", "iterations must be between 1 and "+strconv.Itoa(privacy.MaxIterations))
			return
		}
		iterations = n
	}

	count, err := h.privacy.Run(c.Request.Context(), fenceID, iterations)
	if errors.Is(err, privacy.ErrFenceNotFound) {
		util.RespondNotFound(c, "Fence")
		return
	} else if err != nil {
		logger.Log.Error("Privacy simulation failed", logger.WithFenceID(fenceID), zap.Error(err))
		util.RespondInternalError(c, "Simulation failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   count,
		"message": "Simulation complete",
	})
}

// PrivacySummary aggregates the stored samples (admin only)
func (h *Handlers) PrivacySummary(c *gin.Context) {
	summary, err := h.privacy.Summarize(c.Request.Context())
	if err != nil {
		util.RespondInternalError(c, "Failed to summarize samples")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ExportPrivacy downloads every sample as CSV (admin only)
func (h *Handlers) ExportPrivacy(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.privacy.Export(c.Request.Context(), &buf); err != nil {
		logger.Log.Error("Privacy export failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to export samples")
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+privacy.ExportFilename)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// WipePrivacy deletes every stored sample (admin only)
func (h *Handlers) WipePrivacy(c *gin.Context) {
	removed, err := h.privacy.Wipe(c.Request.Context())
	if err != nil {
		util.RespondInternalError(c, "Failed to wipe samples")
		return
	}
	logger.Log.Info("Privacy logs wiped", zap.Int64("removed", removed))
	c.Status(http.StatusNoContent)
}
