package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/analytics"
	"github.com/geoaware/backend/internal/auth"
	"github.com/geoaware/backend/internal/cache"
	"github.com/geoaware/backend/internal/database"
	"github.com/geoaware/backend/internal/models"
	"github.com/geoaware/backend/internal/privacy"
	"github.com/geoaware/backend/internal/util"
	ws "github.com/geoaware/backend/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminID = "0b0e4a52-8f3d-4c1e-9a57-2f6d1c8e7a10"
	userID  = "6f1c2d3e-4b5a-4978-8c6d-5e4f3a2b1c0d"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mapStore is an in-memory cache.Store
type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (m mapStore) SetEx(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m[key] = value.(string)
	return nil
}

func (m mapStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func (m mapStore) Keys(_ context.Context, _ string) ([]string, error) {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out, nil
}

func (m mapStore) IncrWithExpire(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

type testEnv struct {
	router     *gin.Engine
	auth       *auth.MockAuthService
	reports    *cache.Analytics
	adminToken string
	userToken  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mockAuth := auth.NewMockAuthService()
	env := &testEnv{
		auth:    mockAuth,
		reports: cache.NewAnalytics(mapStore{}, time.Minute),
	}
	env.adminToken = mockAuth.AddUser(&models.User{ID: adminID, Username: "admin", Role: models.RoleAdmin})
	env.userToken = mockAuth.AddUser(&models.User{ID: userID, Username: "mario", Role: models.RoleUser})

	h := NewHandlers(analytics.NewService(database.DB, env.reports), privacy.NewSimulator(database.DB))
	env.router = gin.New()
	RegisterRoutes(env.router, h, NewAuthHandlers(mockAuth), nil, func(c *gin.Context) { c.Next() })
	return env
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) util.ErrorResponse {
	t.Helper()
	var resp util.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	body := gin.H{"name": "Luigi", "surname": "Verdi", "username": "luigi", "password": "secret1"}
	w := env.do(http.MethodPost, "/api/v1/auth/register", "", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp auth.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "luigi", resp.User.Username)
	assert.NotContains(t, w.Body.String(), "password")

	w = env.do(http.MethodPost, "/api/v1/users", "", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Username is already taken", decodeError(t, w).Message)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", `{"name":`},
		{"missing password", gin.H{"name": "A", "surname": "B", "username": "abc"}},
		{"short username", gin.H{"name": "A", "surname": "B", "username": "ab", "password": "secret1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "mario", "password": "x"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/v1/users/login", "", gin.H{"username": "nobody", "password": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", decodeError(t, w).Message)

	env.auth.LoginFunc = func(auth.LoginRequest) (*auth.AuthResponse, error) {
		return nil, auth.ErrInvalidCredentials
	}
	w = env.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "mario", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Wrong password", decodeError(t, w).Message)
}

func TestMeAndAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/auth/me", env.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, userID, me.ID)

	w = env.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/v1/auth/me", "token-unknown", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRejectUsers(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/analytics/metrics"},
		{http.MethodGet, "/api/v1/analytics/heatmap"},
		{http.MethodGet, "/api/v1/privacy-analysis/summary"},
		{http.MethodDelete, "/api/v1/privacy-analysis"},
		{http.MethodGet, "/api/v1/users"},
		{http.MethodPost, "/api/v1/geofences"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			w := env.do(p.method, p.path, env.userToken, nil)
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}
}

func TestAnalyticsFromCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.reports.Save(ctx, "stats", []analytics.FenceStats{
		{FenceID: "a", Name: "Museum", Entries: 4, Views: 3, Exits: 4},
		{FenceID: "b", Name: "Park", Entries: 0},
	})
	env.reports.Save(ctx, "heatmap", []analytics.HeatmapPoint{{Lat: 45.07, Lon: 7.68}})

	w := env.do(http.MethodGet, "/api/v1/analytics/metrics", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var metrics []analytics.Metric
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	require.Len(t, metrics, 2)
	assert.Equal(t, "75.0%", metrics[0].ConversionRate)
	assert.Equal(t, "25.0%", metrics[0].BounceRate)
	assert.Equal(t, "0.0%", metrics[1].ConversionRate)

	w = env.do(http.MethodGet, "/api/v1/analytics/clustering", env.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Not enough data (min 3)", decodeError(t, w).Message)

	w = env.do(http.MethodGet, "/api/v1/analytics/heatmap", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"FeatureCollection"`)
	assert.Contains(t, w.Body.String(), `"weight":1`)
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t)

	valid := func() gin.H {
		return gin.H{
			"type":      "entry",
			"userId":    userID,
			"fenceId":   adminID,
			"location":  gin.H{"type": "Point", "coordinates": []float64{7.68, 45.07}},
			"timestamp": "2025-03-01T10:00:00Z",
		}
	}

	tests := []struct {
		name   string
		mutate func(gin.H)
		field  string
	}{
		{"unknown type", func(b gin.H) { b["type"] = "teleport" }, "type"},
		{"bad user id", func(b gin.H) { b["userId"] = "42" }, "userId"},
		{"polygon location", func(b gin.H) {
			b["location"] = gin.H{"type": "Polygon", "coordinates": [][][]float64{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}
		}, "location"},
		{"out of range location", func(b gin.H) {
			b["location"] = gin.H{"type": "Point", "coordinates": []float64{7.68, 95}}
		}, "location"},
		{"bad timestamp", func(b gin.H) { b["timestamp"] = "yesterday" }, "timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			tt.mutate(body)
			w := env.do(http.MethodPost, "/api/v1/events", env.userToken, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.field, decodeError(t, w).Field)
		})
	}

	w := env.do(http.MethodPost, "/api/v1/events", env.userToken, gin.H{"type": "entry"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCoordinateValidation(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/v1/content-meta/by-coords?lat=91&lon=7",
		"/api/v1/content-meta/by-coords?lat=45&lon=-181",
		"/api/v1/content-meta/by-coords?lat=abc&lon=7",
		"/api/v1/geofences/containing?lat=45",
	} {
		w := env.do(http.MethodGet, path, env.userToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestGeofenceValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		body  interface{}
		field string
	}{
		{"missing name", gin.H{"geometry": gin.H{"type": "Point", "coordinates": []float64{7, 45}}}, "name"},
		{"missing geometry", gin.H{"name": "Piazza"}, "geometry"},
		{"open ring", gin.H{"name": "Piazza", "geometry": gin.H{
			"type": "Polygon", "coordinates": [][][]float64{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}},
		}}, "geometry"},
		{"unsupported type", gin.H{"name": "Piazza", "geometry": gin.H{
			"type": "LineString", "coordinates": [][]float64{{0, 0}, {1, 1}},
		}}, "geometry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/geofences", env.adminToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.field, decodeError(t, w).Field)
		})
	}
}

func TestPathAndQueryValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method string
		path   string
		token  string
	}{
		{http.MethodGet, "/api/v1/content-meta/content/not-a-uuid", ""},
		{http.MethodGet, "/api/v1/geofences/not-a-uuid", env.userToken},
		{http.MethodPost, "/api/v1/privacy-analysis/simulate/not-a-uuid", env.adminToken},
		{http.MethodPost, "/api/v1/privacy-analysis/simulate/" + adminID + "?iterations=0", env.adminToken},
		{http.MethodPost, "/api/v1/privacy-analysis/simulate/" + adminID + "?iterations=100001", env.adminToken},
		{http.MethodPost, "/api/v1/privacy-analysis/simulate/" + adminID + "?iterations=many", env.adminToken},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := env.do(tt.method, tt.path, tt.token, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestUpdateUserPermissions(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPatch, "/api/v1/users/"+adminID, env.userToken, gin.H{"name": "Hacker"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPatch, "/api/v1/users/"+userID, env.userToken, gin.H{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPatch, "/api/v1/users/"+userID, env.userToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthWithoutDatabase(t *testing.T) {
	saved := database.DB
	database.DB = nil
	defer func() { database.DB = saved }()

	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
}

func TestFenceChangeNotifiesDashboards(t *testing.T) {
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Shutdown(context.Background())

	mockAuth := auth.NewMockAuthService()
	token := mockAuth.AddUser(&models.User{ID: adminID, Username: "admin", Role: models.RoleAdmin})
	wsHandler := ws.NewHandler(hub, mockAuth, nil)

	h := NewHandlers(nil, nil)
	h.SetWebSocketHandler(wsHandler)

	r := gin.New()
	r.GET("/ws", wsHandler.HandleWebSocket)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var welcome ws.Message
	require.NoError(t, wsjson.Read(ctx, conn, &welcome))
	require.Equal(t, ws.MessageTypeSystem, welcome.Type)

	h.fenceChanged(ctx, "fence-9", fenceUpdated)

	var changed, invalidated ws.Message
	require.NoError(t, wsjson.Read(ctx, conn, &changed))
	assert.Equal(t, ws.MessageTypeGeofenceChanged, changed.Type)
	require.NoError(t, wsjson.Read(ctx, conn, &invalidated))
	assert.Equal(t, ws.MessageTypeAnalyticsInvalidated, invalidated.Type)

	var payload ws.AnalyticsInvalidatedPayload
	require.NoError(t, invalidated.ParsePayload(&payload))
	assert.Equal(t, "geofence.updated", payload.Reason)
}
