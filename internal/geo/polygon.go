package geo

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// ContainsPoint reports whether the point lies inside a Polygon or
// MultiPolygon. Holes are excluded. Point geometries never contain anything.
func (g Geometry) ContainsPoint(lat, lon float64) bool {
	switch t := g.T.(type) {
	case *geom.Polygon:
		return polygonContains(t, lat, lon)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), lat, lon) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, lat, lon float64) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	pt := geom.Coord{lon, lat}
	if !xy.IsPointInRing(p.Layout(), pt, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.Layout(), pt, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// OuterRing returns the vertices of the first polygon's shell without the
// closing duplicate. A point geometry yields a single vertex.
func (g Geometry) OuterRing() []LatLon {
	var ring *geom.LinearRing
	switch t := g.T.(type) {
	case *geom.Point:
		return []LatLon{{Lat: t.Y(), Lon: t.X()}}
	case *geom.Polygon:
		if t.NumLinearRings() > 0 {
			ring = t.LinearRing(0)
		}
	case *geom.MultiPolygon:
		if t.NumPolygons() > 0 && t.Polygon(0).NumLinearRings() > 0 {
			ring = t.Polygon(0).LinearRing(0)
		}
	}
	if ring == nil {
		return nil
	}

	coords := ring.Coords()
	if n := len(coords); n > 1 && coords[0].Equal(ring.Layout(), coords[n-1]) {
		coords = coords[:n-1]
	}
	out := make([]LatLon, 0, len(coords))
	for _, c := range coords {
		out = append(out, LatLon{Lat: c.Y(), Lon: c.X()})
	}
	return out
}

// VertexCentroid is the arithmetic mean of the outer ring vertices
func (g Geometry) VertexCentroid() (LatLon, bool) {
	ring := g.OuterRing()
	if len(ring) == 0 {
		return LatLon{}, false
	}
	var c LatLon
	for _, v := range ring {
		c.Lat += v.Lat
		c.Lon += v.Lon
	}
	c.Lat /= float64(len(ring))
	c.Lon /= float64(len(ring))
	return c, true
}

// BBox is an axis-aligned bounding box in degrees
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Bounds returns the bounding box of the geometry
func (g Geometry) Bounds() (BBox, bool) {
	if g.T == nil {
		return BBox{}, false
	}
	b := g.T.Bounds()
	if b.IsEmpty() {
		return BBox{}, false
	}
	return BBox{MinLon: b.Min(0), MinLat: b.Min(1), MaxLon: b.Max(0), MaxLat: b.Max(1)}, true
}

// Expand grows the box by buffer degrees on every side
func (b BBox) Expand(buffer float64) BBox {
	return BBox{
		MinLon: b.MinLon - buffer,
		MinLat: b.MinLat - buffer,
		MaxLon: b.MaxLon + buffer,
		MaxLat: b.MaxLat + buffer,
	}
}

// NewRectangle builds a closed, counter-clockwise polygon from two corners
func NewRectangle(minLat, minLon, maxLat, maxLon float64) Geometry {
	flat := []float64{
		minLon, minLat,
		maxLon, minLat,
		maxLon, maxLat,
		minLon, maxLat,
		minLon, minLat,
	}
	return Geometry{T: geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(SRID)}
}
