package auth

import (
	"context"
	"sync"
	"time"

	"github.com/geoaware/backend/internal/models"
)

// MockCall records a method call for assertion
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockAuthService is an in-memory AuthServiceInterface for handler tests.
// Tokens are the user ID prefixed with "token-".
type MockAuthService struct {
	mu sync.Mutex

	Calls []MockCall

	RegisterFunc      func(req RegisterRequest) (*AuthResponse, error)
	LoginFunc         func(req LoginRequest) (*AuthResponse, error)
	ValidateTokenFunc func(tokenString string) (*models.User, error)

	// Users keyed by ID
	Users map[string]*models.User
}

// NewMockAuthService creates a new mock auth service
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{
		Calls: make([]MockCall, 0),
		Users: make(map[string]*models.User),
	}
}

func (m *MockAuthService) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetCallsForMethod returns calls for a specific method
func (m *MockAuthService) GetCallsForMethod(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []MockCall
	for _, call := range m.Calls {
		if call.Method == method {
			result = append(result, call)
		}
	}
	return result
}

// AddUser registers a user the mock will authenticate
func (m *MockAuthService) AddUser(user *models.User) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[user.ID] = user
	return "token-" + user.ID
}

func (m *MockAuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	m.recordCall("Register", req)
	if m.RegisterFunc != nil {
		return m.RegisterFunc(req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Username == req.Username {
			return nil, ErrUsernameExists
		}
	}
	user := &models.User{ID: req.Username + "-id", Name: req.Name, Surname: req.Surname, Username: req.Username, Role: models.RoleUser}
	m.Users[user.ID] = user
	return &AuthResponse{Token: "token-" + user.ID, User: *user, ExpiresAt: time.Now().Add(TokenTTL)}, nil
}

func (m *MockAuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	m.recordCall("Login", req)
	if m.LoginFunc != nil {
		return m.LoginFunc(req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Username == req.Username {
			return &AuthResponse{Token: "token-" + u.ID, User: *u, ExpiresAt: time.Now().Add(TokenTTL)}, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockAuthService) ValidateToken(tokenString string) (*models.User, error) {
	m.recordCall("ValidateToken", tokenString)
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(tokenString)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	const prefix = "token-"
	if len(tokenString) <= len(prefix) || tokenString[:len(prefix)] != prefix {
		return nil, ErrInvalidToken
	}
	user, ok := m.Users[tokenString[len(prefix):]]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (m *MockAuthService) GenerateToken(user *models.User) (string, time.Time, error) {
	m.recordCall("GenerateToken", user.ID)
	return "token-" + user.ID, time.Now().Add(TokenTTL), nil
}

var _ AuthServiceInterface = (*MockAuthService)(nil)
