package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsCarryStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		status int
		code   ErrorCode
	}{
		{"not found", NotFound("User"), http.StatusNotFound, ErrNotFound},
		{"not found message", NotFoundMessage("No fence found for given coordinates"), http.StatusNotFound, ErrNotFound},
		{"unauthorized", Unauthorized("Wrong password"), http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden("admin only"), http.StatusForbidden, ErrForbidden},
		{"conflict", Conflict("Username is already taken"), http.StatusConflict, ErrConflict},
		{"validation", ValidationError("lat", "out of range"), http.StatusUnprocessableEntity, ErrValidation},
		{"bad request", BadRequest("No file uploaded"), http.StatusBadRequest, ErrBadRequest},
		{"gone", Gone("Content Expired"), http.StatusGone, ErrGone},
		{"internal", InternalError("boom"), http.StatusInternalServerError, ErrInternalError},
		{"rate limited", RateLimited(""), http.StatusTooManyRequests, ErrRateLimited},
		{"unavailable", ServiceUnavailable("redis"), http.StatusServiceUnavailable, ErrServiceUnavail},
		{"timeout", Timeout("simulation"), http.StatusGatewayTimeout, ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.code.StatusCode())
		})
	}
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: User not found", NotFound("User").Error())
	assert.Equal(t, "VALIDATION_ERROR: out of range (field: lat)", ValidationError("lat", "out of range").Error())
	assert.Equal(t, "rate limit exceeded", RateLimited("").Message)
}

func TestWithDetails(t *testing.T) {
	err := BadRequest("invalid geometry").WithDetails("unsupported type LineString")
	assert.Equal(t, "unsupported type LineString", err.Details)
}

func TestUnknownCodeMapsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, ErrorCode("SOMETHING_ELSE").StatusCode())
}
