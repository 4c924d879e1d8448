package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/middleware"
	"github.com/geoaware/backend/internal/websocket"
)

// RegisterRoutes mounts the API under /api/v1. apiLimiter throttles every
// API route; nil selects the in-memory default.
func RegisterRoutes(r *gin.Engine, h *Handlers, authHandlers *AuthHandlers, ws *websocket.Handler, apiLimiter gin.HandlerFunc) {
	if apiLimiter == nil {
		apiLimiter = middleware.RateLimit()
	}
	requireAuth := authHandlers.AuthMiddleware()
	requireAdmin := middleware.RequireAdmin()

	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	api.Use(apiLimiter)
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", middleware.RateLimitAuth(), authHandlers.Register)
			authGroup.POST("/login", middleware.RateLimitAuth(), authHandlers.Login)
			authGroup.GET("/me", requireAuth, authHandlers.Me)
		}

		users := api.Group("/users")
		{
			users.POST("", middleware.RateLimitAuth(), authHandlers.Register)
			users.POST("/login", middleware.RateLimitAuth(), authHandlers.Login)

			users.GET("", requireAuth, requireAdmin, h.ListUsers)
			users.GET("/:id", requireAuth, h.GetUser)
			users.PATCH("/:id", requireAuth, h.UpdateUser)
			users.DELETE("/:id", requireAuth, requireAdmin, h.DeleteUser)
		}

		geofences := api.Group("/geofences")
		geofences.Use(requireAuth)
		{
			geofences.GET("", h.ListGeofences)
			geofences.GET("/containing", h.GeofencesContaining)
			geofences.GET("/:id", h.GetGeofence)
			geofences.POST("", requireAdmin, h.CreateGeofence)
			geofences.PUT("/:id", requireAdmin, h.ReplaceGeofence)
			geofences.PATCH("/:id", requireAdmin, h.PatchGeofence)
			geofences.DELETE("/:id", requireAdmin, h.DeleteGeofence)
		}

		content := api.Group("/content-meta")
		{
			// Opened from notifications on devices, so no token is required.
			content.GET("/content/:id", h.RedirectContent)

			content.GET("", requireAuth, h.ListContentMeta)
			content.GET("/by-coords", requireAuth, h.ContentByCoords)
			content.GET("/:id", requireAuth, h.GetContentMeta)
			content.POST("", requireAuth, requireAdmin, h.CreateContentMeta)
			content.PATCH("/:id", requireAuth, requireAdmin, h.PatchContentMeta)
			content.DELETE("/:id", requireAuth, requireAdmin, h.DeleteContentMeta)
		}

		events := api.Group("/events")
		events.Use(requireAuth)
		{
			events.POST("", h.CreateEvent)
			events.GET("", h.ListEvents)
		}

		analyticsGroup := api.Group("/analytics")
		analyticsGroup.Use(requireAuth, requireAdmin)
		{
			analyticsGroup.GET("/heatmap", h.AnalyticsHeatmap)
			analyticsGroup.GET("/metrics", h.AnalyticsMetrics)
			analyticsGroup.GET("/clustering", h.AnalyticsClustering)
		}

		privacyGroup := api.Group("/privacy-analysis")
		privacyGroup.Use(requireAuth, requireAdmin)
		{
			privacyGroup.POST("/simulate/:fenceId", h.SimulatePrivacy)
			privacyGroup.GET("/summary", h.PrivacySummary)
			privacyGroup.GET("/export", h.ExportPrivacy)
			privacyGroup.DELETE("", h.WipePrivacy)
		}

		if ws != nil {
			wsGroup := api.Group("/ws")
			{
				// Token comes from ?token= or the Authorization header.
				wsGroup.GET("", ws.HandleWebSocket)
				wsGroup.GET("/metrics", requireAuth, requireAdmin, ws.HandleMetrics)
			}
		}
	}
}
