package geofencing

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geoaware/backend/internal/apiclient"
	"github.com/geoaware/backend/internal/geo"
	"github.com/geoaware/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 0.01° square around (45.005, 7.005), roughly 1.1 km by 0.8 km
const squareJSON = `{"type":"Polygon","coordinates":[[[7.0,45.0],[7.01,45.0],[7.01,45.01],[7.0,45.01],[7.0,45.0]]]}`

// L-shaped fence: the circle covers the empty upper-right quadrant
const lShapeJSON = `{"type":"Polygon","coordinates":[[[7.0,45.0],[7.01,45.0],[7.01,45.005],[7.005,45.005],[7.005,45.01],[7.0,45.01],[7.0,45.0]]]}`

func mustGeometry(t *testing.T, raw string) geo.Geometry {
	t.Helper()
	g, err := geo.ParseGeoJSON([]byte(raw))
	require.NoError(t, err)
	return g
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []Report
	err     error
}

func (r *recordingReporter) Report(_ context.Context, rep Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return r.err
}

func TestPolygonToCircle(t *testing.T) {
	g := mustGeometry(t, squareJSON)
	region, err := PolygonToCircle("f1", g)
	require.NoError(t, err)

	assert.Equal(t, "f1", region.Identifier)
	assert.InDelta(t, 45.005, region.Latitude, 1e-4)
	assert.InDelta(t, 7.005, region.Longitude, 1e-4)

	var maxDist float64
	for _, v := range g.OuterRing() {
		if d := geo.Haversine(region.Center(), v); d > maxDist {
			maxDist = d
		}
	}
	assert.Equal(t, math.Ceil(maxDist*RadiusMargin), region.RadiusMeters)
	for _, v := range g.OuterRing() {
		assert.True(t, region.Contains(v))
	}
}

func TestPolygonToCircleMinimumRadius(t *testing.T) {
	tiny := mustGeometry(t, `{"type":"Polygon","coordinates":[[[7.0,45.0],[7.0001,45.0],[7.0001,45.0001],[7.0,45.0]]]}`)
	region, err := PolygonToCircle("tiny", tiny)
	require.NoError(t, err)
	assert.Equal(t, float64(MinRadiusMeters), region.RadiusMeters)

	point := mustGeometry(t, `{"type":"Point","coordinates":[7.68,45.07]}`)
	region, err = PolygonToCircle("p", point)
	require.NoError(t, err)
	assert.Equal(t, float64(MinRadiusMeters), region.RadiusMeters)
	assert.Equal(t, 45.07, region.Latitude)
	assert.Equal(t, 7.68, region.Longitude)

	_, err = PolygonToCircle("empty", geo.Geometry{})
	assert.ErrorIs(t, err, ErrNoVertices)
}

func TestContainsPoint(t *testing.T) {
	g := mustGeometry(t, lShapeJSON)
	assert.True(t, ContainsPoint(g, 45.002, 7.002))
	assert.True(t, ContainsPoint(g, 45.008, 7.002))
	assert.False(t, ContainsPoint(g, 45.008, 7.008))
	assert.False(t, ContainsPoint(mustGeometry(t, `{"type":"Point","coordinates":[7.0,45.0]}`), 45.0, 7.0))
}

func newTestMonitor(t *testing.T, opts ...MonitorOption) (*Monitor, *recordingNotifier, *recordingReporter) {
	t.Helper()
	n := &recordingNotifier{}
	r := &recordingReporter{}
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	base := []MonitorOption{WithNotifier(n), WithReporter(r), WithClock(func() time.Time { return at })}
	m := NewMonitor(append(base, opts...)...)
	m.RegisterFences([]Fence{{ID: "L", Name: "Cortile", Geometry: mustGeometry(t, lShapeJSON)}})
	return m, n, r
}

func TestEnterConfirmedNotifiesAndReports(t *testing.T) {
	m, n, r := newTestMonitor(t)
	ctx := context.Background()

	outcome, err := m.HandleRegionEvent(ctx, RegionEvent{FenceID: "L", Kind: RegionEnter, Lat: 45.002, Lon: 7.002})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEntered, outcome)
	assert.Equal(t, []string{"L"}, m.Inside())

	require.Len(t, n.sent, 1)
	assert.Equal(t, "You entered the zone!", n.sent[0].Title)
	assert.Equal(t, "Discover content for: Cortile", n.sent[0].Body)
	assert.Equal(t, "L", n.sent[0].Data["geofenceId"])

	require.Len(t, r.reports, 1)
	assert.Equal(t, models.EventEntry, r.reports[0].Type)
	assert.Equal(t, geo.LatLon{Lat: 45.002, Lon: 7.002}, r.reports[0].Location)

	outcome, err = m.HandleRegionEvent(ctx, RegionEvent{FenceID: "L", Kind: RegionEnter, Lat: 45.002, Lon: 7.002})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Len(t, n.sent, 1)
}

func TestEnterFalseAlarm(t *testing.T) {
	m, n, r := newTestMonitor(t)

	outcome, err := m.HandleRegionEvent(context.Background(), RegionEvent{FenceID: "L", Kind: RegionEnter, Lat: 45.008, Lon: 7.008})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFalseAlarm, outcome)
	assert.Empty(t, m.Inside())
	assert.Empty(t, n.sent)
	assert.Empty(t, r.reports)
}

func TestExit(t *testing.T) {
	m, _, r := newTestMonitor(t)
	ctx := context.Background()

	outcome, err := m.HandleRegionEvent(ctx, RegionEvent{FenceID: "L", Kind: RegionExit, Lat: 45.02, Lon: 7.02})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, r.reports)

	_, err = m.HandleRegionEvent(ctx, RegionEvent{FenceID: "L", Kind: RegionEnter, Lat: 45.002, Lon: 7.002})
	require.NoError(t, err)
	outcome, err = m.HandleRegionEvent(ctx, RegionEvent{FenceID: "L", Kind: RegionExit, Lat: 45.02, Lon: 7.02})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExited, outcome)
	require.Len(t, r.reports, 2)
	assert.Equal(t, models.EventExit, r.reports[1].Type)
	assert.Empty(t, m.Inside())
}

func TestHandleRegionEventErrors(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	_, err := m.HandleRegionEvent(ctx, RegionEvent{FenceID: "nope", Kind: RegionEnter})
	assert.ErrorIs(t, err, ErrUnknownFence)

	_, err = m.HandleRegionEvent(ctx, RegionEvent{FenceID: "L", Kind: "dwell"})
	assert.Error(t, err)
}

func TestReporterFailureKeepsState(t *testing.T) {
	m, _, r := newTestMonitor(t)
	r.err = errors.New("offline")

	outcome, err := m.HandleRegionEvent(context.Background(), RegionEvent{FenceID: "L", Kind: RegionEnter, Lat: 45.002, Lon: 7.002})
	assert.Error(t, err)
	assert.Equal(t, OutcomeEntered, outcome)
	assert.Equal(t, []string{"L"}, m.Inside())
}

func TestPrivacyCloaksReports(t *testing.T) {
	m, _, r := newTestMonitor(t, WithPrivacy(true))

	_, err := m.HandleRegionEvent(context.Background(), RegionEvent{FenceID: "L", Kind: RegionEnter, Lat: 45.0026789, Lon: 7.0021234})
	require.NoError(t, err)
	require.Len(t, r.reports, 1)
	assert.Equal(t, geo.LatLon{Lat: 45.002, Lon: 7.002}, r.reports[0].Location)

	m.SetPrivacy(false)
	_, err = m.UpdateLocation(context.Background(), 45.03, 7.03)
	require.NoError(t, err)
	assert.Equal(t, geo.LatLon{Lat: 45.03, Lon: 7.03}, r.reports[1].Location)
}

func TestUpdateLocationRefinesState(t *testing.T) {
	m, n, r := newTestMonitor(t)
	ctx := context.Background()

	steps := []struct {
		lat, lon float64
		want     []Transition
	}{
		{45.008, 7.008, []Transition{}},
		{45.008, 7.002, []Transition{{FenceID: "L", Outcome: OutcomeEntered}}},
		{45.002, 7.002, []Transition{}},
		{45.008, 7.008, []Transition{{FenceID: "L", Outcome: OutcomeExited}}},
		{46.0, 8.0, []Transition{}},
	}
	for _, s := range steps {
		got, err := m.UpdateLocation(ctx, s.lat, s.lon)
		require.NoError(t, err)
		assert.Equal(t, s.want, got, "at %v,%v", s.lat, s.lon)
	}
	assert.Len(t, n.sent, 1)
	assert.Len(t, r.reports, 2)
}

func TestRegisterFencesKeepsState(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	_, err := m.HandleRegionEvent(ctx, RegionEvent{FenceID: "L", Kind: RegionEnter, Lat: 45.002, Lon: 7.002})
	require.NoError(t, err)

	regions := m.RegisterFences([]Fence{
		{ID: "L", Name: "Cortile", Geometry: mustGeometry(t, lShapeJSON)},
		{ID: "P", Name: "Fontana", Geometry: mustGeometry(t, `{"type":"Point","coordinates":[7.5,45.5]}`)},
		{ID: "bad", Name: "Empty"},
	})
	assert.Len(t, regions, 2)
	assert.Equal(t, []string{"L"}, m.Inside())

	outcome, err := m.HandleRegionEvent(ctx, RegionEvent{FenceID: "P", Kind: RegionEnter, Lat: 45.5003, Lon: 7.5})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEntered, outcome)

	m.RegisterFences(nil)
	assert.Empty(t, m.Inside())
}

func TestSyncFencesAndAPIReporter(t *testing.T) {
	var (
		mu     sync.Mutex
		posted []map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/geofences":
			_, _ = w.Write([]byte(`[{"id":"L","name":"Cortile","geometry":` + lShapeJSON + `}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/events":
			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			posted = append(posted, body)
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"e1","type":"entry","userId":"u1","fenceId":"L"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := apiclient.New(apiclient.Config{BaseURL: srv.URL, Token: "tok"})
	m := NewMonitor(WithNotifier(&recordingNotifier{}), WithReporter(NewAPIReporter(client, "u1")))

	regions, err := SyncFences(context.Background(), client, m)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "L", regions[0].Identifier)

	outcome, err := m.HandleRegionEvent(context.Background(), RegionEvent{FenceID: "L", Kind: RegionEnter, Lat: 45.002, Lon: 7.002})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEntered, outcome)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, posted, 1)
	assert.Equal(t, "entry", posted[0]["type"])
	assert.Equal(t, "u1", posted[0]["userId"])
	assert.Equal(t, "L", posted[0]["fenceId"])
	loc := posted[0]["location"].(map[string]interface{})
	assert.Equal(t, "Point", loc["type"])
	assert.Equal(t, []interface{}{7.002, 45.002}, loc["coordinates"])
}
