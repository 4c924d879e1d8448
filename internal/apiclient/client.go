// Package apiclient talks to the GeoAware REST API. It is shared by the
// device-side geofencing library and the event generator.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/geoaware/backend/internal/auth"
	"github.com/geoaware/backend/internal/geo"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/models"
	"github.com/geoaware/backend/internal/telemetry"
	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Config configures a Client
type Config struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string

	// Retries on transport errors
	RetryCount int

	// Consecutive failures that open the breaker, and how long it stays open
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultConfig targets a local server
func DefaultConfig() Config {
	return Config{
		BaseURL:          "http://localhost:8787",
		Timeout:          10 * time.Second,
		UserAgent:        "GeoAware-Client/1.0",
		RetryCount:       2,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Client is a REST client guarded by a circuit breaker. Transport errors
// and 5xx responses count as failures; 4xx responses do not.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
}

// New creates a client from cfg, filling zero fields from DefaultConfig
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	httpClient := resty.NewWithClient(telemetry.NewInstrumentedHTTPClient("geoaware-api", cfg.Timeout)).
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond)
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}

	httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Log.Debug("API response",
			zap.String("method", resp.Request.Method),
			zap.String("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("took", resp.Time()),
		)
		return nil
	})

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "geoaware-api",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{http: httpClient, breaker: breaker}
}

// SetToken replaces the bearer token
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// BreakerState exposes the circuit breaker state
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		req := c.http.R().SetContext(ctx)
		if body != nil {
			req.SetBody(body)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, ParseError(resp)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if !resp.IsSuccess() {
		return ParseError(resp)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Body(), result); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

// Login authenticates and stores the returned token on the client
func (c *Client) Login(ctx context.Context, username, password string) (*auth.AuthResponse, error) {
	var out auth.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", auth.LoginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Geofences lists every fence
func (c *Client) Geofences(ctx context.Context) ([]models.Geofence, error) {
	var out []models.Geofence
	if err := c.do(ctx, http.MethodGet, "/api/v1/geofences", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Users lists every account (admin only)
func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var out []models.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventRequest is the body of POST /api/v1/events
type EventRequest struct {
	Type      models.EventType `json:"type"`
	UserID    string           `json:"userId"`
	FenceID   string           `json:"fenceId"`
	Location  geo.Geometry     `json:"location"`
	Timestamp string           `json:"timestamp"`
}

// NewEventRequest builds a request for a point location
func NewEventRequest(eventType models.EventType, userID, fenceID string, at geo.LatLon, ts time.Time) EventRequest {
	return EventRequest{
		Type:      eventType,
		UserID:    userID,
		FenceID:   fenceID,
		Location:  geo.NewPoint(at.Lat, at.Lon),
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	}
}

// CreateEvent records a tracking event
func (c *Client) CreateEvent(ctx context.Context, req EventRequest) (*models.Event, error) {
	var out models.Event
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
