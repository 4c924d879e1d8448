package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/auth"
	"github.com/geoaware/backend/internal/database"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/models"
	"github.com/geoaware/backend/internal/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListUsers returns every account (admin only)
func (h *Handlers) ListUsers(c *gin.Context) {
	var users []models.User
	if err := database.DB.WithContext(c.Request.Context()).Order("created_at ASC").Find(&users).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch users")
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetUser returns one account
func (h *Handlers) GetUser(c *gin.Context) {
	id, ok := requireUUIDParam(c, "id")
	if !ok {
		return
	}

	var user models.User
	if err := database.DB.WithContext(c.Request.Context()).First(&user, "id = ?", id).Error; err != nil {
		util.HandleDBError(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUserRequest is a partial account update
type UpdateUserRequest struct {
	Name     *string      `json:"name" binding:"omitempty,max=80"`
	Surname  *string      `json:"surname" binding:"omitempty,max=80"`
	Username *string      `json:"username" binding:"omitempty,min=3,max=30"`
	Password *string      `json:"password" binding:"omitempty,min=6"`
	Role     *models.Role `json:"role"`
}

// UpdateUser applies a partial update. Users may edit themselves; admins
// may edit anyone and are the only ones allowed to change roles.
func (h *Handlers) UpdateUser(c *gin.Context) {
	caller, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	id, ok := requireUUIDParam(c, "id")
	if !ok {
		return
	}
	if caller.ID != id && !caller.IsAdmin() {
		util.RespondForbidden(c, "Cannot modify another user")
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Surname != nil {
		updates["surname"] = strings.TrimSpace(*req.Surname)
	}
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		var taken int64
		database.DB.WithContext(c.Request.Context()).Model(&models.User{}).
			Where("LOWER(username) = LOWER(?) AND id <> ?", username, id).
			Count(&taken)
		if taken > 0 {
			util.RespondConflict(c, "Username is already taken")
			return
		}
		updates["username"] = username
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			util.RespondInternalError(c, "Failed to hash password")
			return
		}
		updates["password_hash"] = hash
	}
	if req.Role != nil {
		if !caller.IsAdmin() {
			util.RespondForbidden(c, "Only admins can change roles")
			return
		}
		if !req.Role.Valid() {
			respondFieldError(c, "role", "role must be user or admin")
			return
		}
		updates["role"] = *req.Role
	}
	if len(updates) == 0 {
		util.RespondBadRequest(c, "no fields to update")
		return
	}

	result := database.DB.WithContext(c.Request.Context()).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		logger.Log.Error("Failed to update user", logger.WithUserID(id), zap.Error(result.Error))
		util.RespondInternalError(c, "Failed to update user")
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "User")
		return
	}

	var user models.User
	if err := database.DB.WithContext(c.Request.Context()).First(&user, "id = ?", id).Error; err != nil {
		util.HandleDBError(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser removes an account and, by cascade, its events (admin only)
func (h *Handlers) DeleteUser(c *gin.Context) {
	id, ok := requireUUIDParam(c, "id")
	if !ok {
		return
	}

	result := database.DB.WithContext(c.Request.Context()).Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		util.RespondInternalError(c, "Failed to delete user")
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "User")
		return
	}

	logger.Log.Info("User deleted", logger.WithUserID(id))
	c.Status(http.StatusNoContent)
}

// isNotFound reports whether err is GORM's missing-record error
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
