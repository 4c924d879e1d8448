package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/auth"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/util"
	"go.uber.org/zap"
)

// AuthHandlers serves registration, login and the authentication middleware
type AuthHandlers struct {
	authService auth.AuthServiceInterface
}

// NewAuthHandlers creates auth handlers over an auth service
func NewAuthHandlers(authService auth.AuthServiceInterface) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// Register creates an account and returns a token
func (h *AuthHandlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			util.RespondConflict(c, "Username is already taken")
			return
		}
		logger.Log.Error("Registration failed", zap.String("username", req.Username), zap.Error(err))
		util.RespondInternalError(c, "Failed to register user")
		return
	}

	logger.Log.Info("User registered", logger.WithUserID(resp.User.ID))
	c.JSON(http.StatusCreated, resp)
}

// Login checks credentials and returns a token
func (h *AuthHandlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		util.RespondNotFound(c, "User")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		util.RespondUnauthorized(c, "Wrong password")
		return
	case err != nil:
		logger.Log.Error("Login failed", zap.Error(err))
		util.RespondInternalError(c, "Failed to log in")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

// AuthMiddleware validates the bearer token and stores the user in context
func (h *AuthHandlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			util.RespondUnauthorized(c, "no token provided")
			return
		}

		user, err := h.authService.ValidateToken(token)
		if err != nil {
			util.RespondUnauthorized(c, "invalid token")
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
