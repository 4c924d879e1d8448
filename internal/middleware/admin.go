package middleware

import (
	"github.com/geoaware/backend/internal/util"
	"github.com/gin-gonic/gin"
)

// RequireAdmin aborts unless the authenticated user (set by the auth
// middleware) holds the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := util.GetUserFromContext(c)
		if !ok {
			return
		}

		if !user.IsAdmin() {
			util.RespondForbidden(c, "Admin access required")
			return
		}

		c.Next()
	}
}
