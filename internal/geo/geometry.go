// Package geo holds the spatial primitives shared by the API server, the
// event generator and the geofencing client: a GORM/JSON geometry column
// type, distance helpers, point-in-polygon tests and coordinate cloaking.
package geo

import (
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/ewkbhex"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// SRID is the spatial reference every stored geometry uses (WGS 84)
const SRID = 4326

var (
	ErrEmptyGeometry       = errors.New("geometry is empty")
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
	ErrInvalidRing         = errors.New("polygon ring must be closed and have at least 4 positions")
)

// Geometry is a PostGIS geometry column that serializes as GeoJSON.
// It is stored as hex-encoded EWKB with SRID 4326.
type Geometry struct {
	geom.T
}

// NewPoint builds a point geometry from latitude and longitude
func NewPoint(lat, lon float64) Geometry {
	return Geometry{T: geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRID)}
}

// ParseGeoJSON decodes a GeoJSON geometry object and validates it
func ParseGeoJSON(data []byte) (Geometry, error) {
	var g Geometry
	if err := g.UnmarshalJSON(data); err != nil {
		return Geometry{}, err
	}
	if err := g.Validate(); err != nil {
		return Geometry{}, err
	}
	return g, nil
}

// IsEmpty reports whether no geometry is set
func (g Geometry) IsEmpty() bool {
	return g.T == nil
}

// TypeName returns the GeoJSON type name of the geometry
func (g Geometry) TypeName() string {
	switch g.T.(type) {
	case *geom.Point:
		return "Point"
	case *geom.Polygon:
		return "Polygon"
	case *geom.MultiPolygon:
		return "MultiPolygon"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%T", g.T)
	}
}

// Validate checks the geometry is a Point, Polygon or MultiPolygon with closed rings
func (g Geometry) Validate() error {
	switch t := g.T.(type) {
	case nil:
		return ErrEmptyGeometry
	case *geom.Point:
		return validateLonLat(t.X(), t.Y())
	case *geom.Polygon:
		return validatePolygon(t)
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return ErrEmptyGeometry
		}
		for i := 0; i < t.NumPolygons(); i++ {
			if err := validatePolygon(t.Polygon(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g.T)
	}
}

func validatePolygon(p *geom.Polygon) error {
	if p.NumLinearRings() == 0 {
		return ErrEmptyGeometry
	}
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		if ring.NumCoords() < 4 {
			return ErrInvalidRing
		}
		first, last := ring.Coord(0), ring.Coord(ring.NumCoords()-1)
		if first.X() != last.X() || first.Y() != last.Y() {
			return ErrInvalidRing
		}
		for _, c := range ring.Coords() {
			if err := validateLonLat(c.X(), c.Y()); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateLonLat(lon, lat float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("coordinate (%f, %f) out of range", lon, lat)
	}
	return nil
}

// MarshalJSON encodes the geometry as a GeoJSON geometry object
func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.T == nil {
		return []byte("null"), nil
	}
	return geojson.Marshal(g.T)
}

// UnmarshalJSON decodes a GeoJSON geometry object
func (g *Geometry) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		g.T = nil
		return nil
	}
	var t geom.T
	if err := geojson.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("invalid GeoJSON geometry: %w", err)
	}
	g.T = withSRID(t)
	return nil
}

// GormDataType tells GORM which column type to migrate to
func (Geometry) GormDataType() string {
	return "geometry"
}

// Value implements driver.Valuer, writing hex EWKB that PostGIS parses directly
func (g Geometry) Value() (driver.Value, error) {
	if g.T == nil {
		return nil, nil
	}
	return ewkbhex.Encode(withSRID(g.T), binary.LittleEndian)
}

// Scan implements sql.Scanner for hex EWKB text or raw EWKB bytes
func (g *Geometry) Scan(value interface{}) error {
	if value == nil {
		g.T = nil
		return nil
	}

	var (
		t   geom.T
		err error
	)
	switch v := value.(type) {
	case string:
		t, err = ewkbhex.Decode(v)
	case []byte:
		if isHex(v) {
			t, err = ewkbhex.Decode(string(v))
		} else {
			t, err = ewkb.Unmarshal(v)
		}
	default:
		return fmt.Errorf("geometry: cannot scan %T", value)
	}
	if err != nil {
		return fmt.Errorf("geometry: decode EWKB: %w", err)
	}
	g.T = t
	return nil
}

func isHex(b []byte) bool {
	if len(b)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(string(b))
	return err == nil
}

func withSRID(t geom.T) geom.T {
	switch v := t.(type) {
	case *geom.Point:
		return v.SetSRID(SRID)
	case *geom.Polygon:
		return v.SetSRID(SRID)
	case *geom.MultiPolygon:
		return v.SetSRID(SRID)
	case *geom.LineString:
		return v.SetSRID(SRID)
	}
	return t
}
