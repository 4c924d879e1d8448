package auth

import (
	"context"
	"time"

	"github.com/geoaware/backend/internal/models"
)

// AuthServiceInterface defines the contract for authentication operations.
// Handlers depend on it so they can be tested without a database.
type AuthServiceInterface interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	ValidateToken(tokenString string) (*models.User, error)
	GenerateToken(user *models.User) (string, time.Time, error)
}

// Ensure Service implements AuthServiceInterface
var _ AuthServiceInterface = (*Service)(nil)
