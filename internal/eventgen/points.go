package eventgen

import (
	"errors"
	"math"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/geoaware/backend/internal/geo"
)

const (
	// Offsets from the border, in degrees
	minBorderOffset = 0.0001
	maxBorderOffset = 0.0002

	// Point fences and content views jitter by up to half this, in degrees
	driftSpan = 0.0003
)

// ErrNoShape is returned for geometries without vertices
var ErrNoShape = errors.New("geometry has no vertices")

func drift(rng *gofakeit.Faker) float64 {
	return (rng.Float64() - 0.5) * driftSpan
}

// BorderPoint returns a location just inside (inward) or just outside the
// fence border. A random point on a random edge of the outer ring is moved
// toward or away from the ring centroid by 0.0001 to 0.0002 degrees. Point
// fences get a small random drift instead.
func BorderPoint(rng *gofakeit.Faker, g geo.Geometry, inward bool) (geo.LatLon, error) {
	ring := g.OuterRing()
	switch {
	case len(ring) == 0:
		return geo.LatLon{}, ErrNoShape
	case len(ring) == 1 || g.TypeName() == "Point":
		return geo.LatLon{Lat: ring[0].Lat + drift(rng), Lon: ring[0].Lon + drift(rng)}, nil
	}

	centroid, _ := g.VertexCentroid()

	i := rng.IntRange(0, len(ring)-1)
	a, b := ring[i], ring[(i+1)%len(ring)]
	t := rng.Float64()
	edge := geo.LatLon{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lon: a.Lon + (b.Lon-a.Lon)*t,
	}

	dLat, dLon := centroid.Lat-edge.Lat, centroid.Lon-edge.Lon
	length := math.Hypot(dLat, dLon)
	if length == 0 {
		return edge, nil
	}

	dist := rng.Float64Range(minBorderOffset, maxBorderOffset)
	if !inward {
		dist = -dist
	}
	return geo.LatLon{
		Lat: edge.Lat + dLat/length*dist,
		Lon: edge.Lon + dLon/length*dist,
	}, nil
}

// ViewPoint returns a location near the middle of the fence
func ViewPoint(rng *gofakeit.Faker, g geo.Geometry) (geo.LatLon, error) {
	c, ok := g.VertexCentroid()
	if !ok {
		return geo.LatLon{}, ErrNoShape
	}
	return geo.LatLon{Lat: c.Lat + drift(rng), Lon: c.Lon + drift(rng)}, nil
}
