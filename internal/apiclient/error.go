package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"
)

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("backend unavailable")

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%d] %s: %s (field: %s)", e.StatusCode, e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, e.Message)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field"`
	Error   string `json:"error"`
}

// ParseError turns an error response into an *APIError
func ParseError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}

	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && (body.Code != "" || body.Message != "" || body.Error != "") {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		apiErr.Field = body.Field
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	} else {
		apiErr.Message = string(resp.Body())
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(apiErr.StatusCode)
	}
	return apiErr
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports a 401
func IsUnauthorized(err error) bool { return statusOf(err) == http.StatusUnauthorized }

// IsNotFound reports a 404
func IsNotFound(err error) bool { return statusOf(err) == http.StatusNotFound }

// IsConflict reports a 409
func IsConflict(err error) bool { return statusOf(err) == http.StatusConflict }

// IsServerError reports a 5xx
func IsServerError(err error) bool { return statusOf(err) >= http.StatusInternalServerError }
