// Package geofencing is the device-side half of the platform. Operating
// systems only monitor circular regions, so every fence is registered as
// the smallest comfortable circle around it and an OS enter event is then
// confirmed against the real polygon before the user is notified.
package geofencing

import (
	"errors"
	"math"

	"github.com/geoaware/backend/internal/geo"
	"github.com/twpayne/go-geom"
)

const (
	// MinRadiusMeters is the smallest region the OS is asked to monitor
	MinRadiusMeters = 100
	// RadiusMargin inflates the farthest vertex distance
	RadiusMargin = 1.1
)

// ErrNoVertices is returned for geometries without coordinates
var ErrNoVertices = errors.New("geometry has no vertices")

// Fence is a geofence as served by the API
type Fence struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Geometry geo.Geometry `json:"geometry"`
}

// CircularRegion is what gets registered with the OS
type CircularRegion struct {
	Identifier   string  `json:"identifier"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius"`
}

// Center returns the region center
func (r CircularRegion) Center() geo.LatLon {
	return geo.LatLon{Lat: r.Latitude, Lon: r.Longitude}
}

// Contains reports whether p lies within the circle
func (r CircularRegion) Contains(p geo.LatLon) bool {
	return geo.Haversine(r.Center(), p) <= r.RadiusMeters
}

// PolygonToCircle encloses the outer ring of g in a circle: the center of
// its vertices and the farthest vertex distance plus 10%, rounded up and
// never below MinRadiusMeters. A Point becomes a MinRadiusMeters circle.
func PolygonToCircle(id string, g geo.Geometry) (CircularRegion, error) {
	if p, ok := g.T.(*geom.Point); ok {
		return CircularRegion{Identifier: id, Latitude: p.Y(), Longitude: p.X(), RadiusMeters: MinRadiusMeters}, nil
	}

	vertices := g.OuterRing()
	center, ok := geo.SphericalCenter(vertices)
	if !ok {
		return CircularRegion{}, ErrNoVertices
	}

	var maxDist float64
	for _, v := range vertices {
		maxDist = math.Max(maxDist, geo.Haversine(center, v))
	}

	return CircularRegion{
		Identifier:   id,
		Latitude:     center.Lat,
		Longitude:    center.Lon,
		RadiusMeters: math.Max(math.Ceil(maxDist*RadiusMargin), MinRadiusMeters),
	}, nil
}

// ContainsPoint is the precise check: Polygon and MultiPolygon fences with
// holes respected. Point geometries contain nothing.
func ContainsPoint(g geo.Geometry, lat, lon float64) bool {
	return g.ContainsPoint(lat, lon)
}
