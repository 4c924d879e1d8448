package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/cache"
	"github.com/geoaware/backend/internal/database"
)

// Health reports database and cache connectivity. Redis is optional, so
// only a database failure makes the service unhealthy.
func (h *Handlers) Health(c *gin.Context) {
	checks := gin.H{}
	status, code := "ok", http.StatusOK

	if err := database.Health(); err != nil {
		checks["database"] = err.Error()
		status, code = "unhealthy", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if rc := cache.GetRedisClient(); rc != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			if status == "ok" {
				status = "degraded"
			}
		} else {
			checks["redis"] = "ok"
		}
	}

	body := gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"service":   "geoaware-backend",
		"checks":    checks,
	}
	if h.wsHandler != nil {
		body["websocket"] = h.wsHandler.GetHub().GetMetrics()
	}
	c.JSON(code, body)
}
