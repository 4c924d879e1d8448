package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

const squareJSON = `{"type":"Polygon","coordinates":[[[7.0,45.0],[7.01,45.0],[7.01,45.01],[7.0,45.01],[7.0,45.0]]]}`

const donutJSON = `{"type":"Polygon","coordinates":[
	[[0,0],[10,0],[10,10],[0,10],[0,0]],
	[[4,4],[6,4],[6,6],[4,6],[4,4]]
]}`

func TestParseGeoJSONPolygon(t *testing.T) {
	g, err := ParseGeoJSON([]byte(squareJSON))
	require.NoError(t, err)
	assert.Equal(t, "Polygon", g.TypeName())
	assert.Equal(t, SRID, g.SRID())

	out, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"Polygon"`)
}

func TestParseGeoJSONRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"open ring", `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1]]]}`},
		{"too few positions", `{"type":"Polygon","coordinates":[[[0,0],[1,0],[0,0]]]}`},
		{"line string", `{"type":"LineString","coordinates":[[0,0],[1,1]]}`},
		{"out of range", `{"type":"Point","coordinates":[200,0]}`},
		{"null", `null`},
		{"garbage", `{"type":"Blob"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGeoJSON([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestEWKBRoundTrip(t *testing.T) {
	g, err := ParseGeoJSON([]byte(squareJSON))
	require.NoError(t, err)

	v, err := g.Value()
	require.NoError(t, err)
	hexStr, ok := v.(string)
	require.True(t, ok)

	var fromString Geometry
	require.NoError(t, fromString.Scan(hexStr))
	assert.Equal(t, g.FlatCoords(), fromString.FlatCoords())
	assert.Equal(t, SRID, fromString.SRID())

	var fromBytes Geometry
	require.NoError(t, fromBytes.Scan([]byte(hexStr)))
	assert.Equal(t, g.FlatCoords(), fromBytes.FlatCoords())

	var empty Geometry
	require.NoError(t, empty.Scan(nil))
	assert.True(t, empty.IsEmpty())
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestContainsPoint(t *testing.T) {
	square, err := ParseGeoJSON([]byte(squareJSON))
	require.NoError(t, err)
	assert.True(t, square.ContainsPoint(45.005, 7.005))
	assert.False(t, square.ContainsPoint(45.02, 7.005))

	donut, err := ParseGeoJSON([]byte(donutJSON))
	require.NoError(t, err)
	assert.True(t, donut.ContainsPoint(2, 2))
	assert.False(t, donut.ContainsPoint(5, 5), "point in the hole")

	point := NewPoint(45, 7)
	assert.False(t, point.ContainsPoint(45, 7))
}

func TestMultiPolygonContains(t *testing.T) {
	mp := Geometry{T: geom.NewMultiPolygon(geom.XY).SetSRID(SRID)}
	a := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}, []int{10})
	b := geom.NewPolygonFlat(geom.XY, []float64{5, 5, 6, 5, 6, 6, 5, 6, 5, 5}, []int{10})
	require.NoError(t, mp.T.(*geom.MultiPolygon).Push(a))
	require.NoError(t, mp.T.(*geom.MultiPolygon).Push(b))

	require.NoError(t, mp.Validate())
	assert.True(t, mp.ContainsPoint(5.5, 5.5))
	assert.False(t, mp.ContainsPoint(3, 3))
}

func TestOuterRingAndCentroid(t *testing.T) {
	g, err := ParseGeoJSON([]byte(squareJSON))
	require.NoError(t, err)

	ring := g.OuterRing()
	assert.Len(t, ring, 4, "closing vertex is dropped")

	c, ok := g.VertexCentroid()
	require.True(t, ok)
	assert.InDelta(t, 45.005, c.Lat, 1e-9)
	assert.InDelta(t, 7.005, c.Lon, 1e-9)

	b, ok := g.Bounds()
	require.True(t, ok)
	assert.Equal(t, BBox{MinLon: 7.0, MinLat: 45.0, MaxLon: 7.01, MaxLat: 45.01}, b)
	assert.InDelta(t, 6.998, b.Expand(0.002).MinLon, 1e-9)
}

func TestNewRectangle(t *testing.T) {
	g := NewRectangle(45.0, 7.0, 45.01, 7.02)
	require.NoError(t, g.Validate())
	assert.Equal(t, "Polygon", g.TypeName())
	assert.True(t, g.ContainsPoint(45.005, 7.01))
	assert.False(t, g.ContainsPoint(45.02, 7.01))
	assert.Len(t, g.OuterRing(), 4)
}

func TestHaversine(t *testing.T) {
	// One degree of latitude is ~111.3 km on the equatorial radius.
	d := Haversine(LatLon{Lat: 0, Lon: 0}, LatLon{Lat: 1, Lon: 0})
	assert.InDelta(t, 111319.5, d, 1)

	assert.Zero(t, Haversine(LatLon{Lat: 45, Lon: 7}, LatLon{Lat: 45, Lon: 7}))
}

func TestSphericalCenter(t *testing.T) {
	c, ok := SphericalCenter([]LatLon{{Lat: 10, Lon: 179}, {Lat: 10, Lon: -179}})
	require.True(t, ok)
	assert.InDelta(t, 180, math.Abs(c.Lon), 1e-9)

	_, ok = SphericalCenter(nil)
	assert.False(t, ok)
}

func TestCloak(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{45.123456, 45.123},
		{-7.6543, -7.655},
		{0.0004, 0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, Cloak(tt.in), 1e-9, "cloak(%v)", tt.in)
	}

	p := CloakPoint(LatLon{Lat: 45.123456, Lon: -7.6543})
	assert.InDelta(t, 45.123, p.Lat, 1e-9)
	assert.InDelta(t, -7.655, p.Lon, 1e-9)
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 1.2, RoundTo(1.23, 1))
	assert.Equal(t, 1.24, RoundTo(1.2351, 2))
}
