package privacy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/geoaware/backend/internal/geo"
	"github.com/geoaware/backend/internal/models"
	"gorm.io/gorm"
)

// ErrFenceNotFound is returned when the simulated fence does not exist
var ErrFenceNotFound = errors.New("fence not found")

// Sample is one simulated position and its cloaked counterpart. The
// oracle fills in the distance and containment fields.
type Sample struct {
	Real            geo.LatLon
	Perturbed       geo.LatLon
	ErrorMeters     float64
	RealInside      bool
	PerturbedInside bool
}

// QoSRetained reports whether cloaking preserved fence membership
func (s Sample) QoSRetained() bool {
	return s.RealInside == s.PerturbedInside
}

// Oracle answers the spatial questions a simulation asks about a fence
type Oracle interface {
	Bounds(ctx context.Context, fenceID string) (geo.BBox, error)
	Evaluate(ctx context.Context, fenceID string, samples []Sample) error
}

// PostGISOracle delegates distance and containment to PostGIS
type PostGISOracle struct {
	db *gorm.DB
}

// NewPostGISOracle creates an oracle over a PostGIS connection
func NewPostGISOracle(db *gorm.DB) *PostGISOracle {
	return &PostGISOracle{db: db}
}

type bboxRow struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Bounds returns the fence bounding box
func (o *PostGISOracle) Bounds(ctx context.Context, fenceID string) (geo.BBox, error) {
	var row bboxRow
	result := o.db.WithContext(ctx).Raw(`
		SELECT ST_XMin(geometry) AS min_lon, ST_YMin(geometry) AS min_lat,
		       ST_XMax(geometry) AS max_lon, ST_YMax(geometry) AS max_lat
		FROM geofences WHERE id = ?`, fenceID).Scan(&row)
	if result.Error != nil {
		return geo.BBox{}, fmt.Errorf("failed to compute fence bounds: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return geo.BBox{}, ErrFenceNotFound
	}
	return geo.BBox(row), nil
}

type evaluationRow struct {
	Idx             int
	Meters          float64
	RealInside      bool
	PerturbedInside bool
}

// Evaluate computes geodesic error and containment for a whole batch in a
// single query by unnesting the coordinates as arrays.
func (o *PostGISOracle) Evaluate(ctx context.Context, fenceID string, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	rlon := make([]float64, len(samples))
	rlat := make([]float64, len(samples))
	plon := make([]float64, len(samples))
	plat := make([]float64, len(samples))
	for i, s := range samples {
		rlon[i], rlat[i] = s.Real.Lon, s.Real.Lat
		plon[i], plat[i] = s.Perturbed.Lon, s.Perturbed.Lat
	}

	var rows []evaluationRow
	err := o.db.WithContext(ctx).Raw(`
		SELECT s.idx AS idx,
		       ST_Distance(
		         ST_SetSRID(ST_MakePoint(s.rlon, s.rlat), 4326)::geography,
		         ST_SetSRID(ST_MakePoint(s.plon, s.plat), 4326)::geography
		       ) AS meters,
		       ST_Contains(f.geometry, ST_SetSRID(ST_MakePoint(s.rlon, s.rlat), 4326)) AS real_inside,
		       ST_Contains(f.geometry, ST_SetSRID(ST_MakePoint(s.plon, s.plat), 4326)) AS perturbed_inside
		FROM geofences f,
		     unnest(?::float8[], ?::float8[], ?::float8[], ?::float8[]) WITH ORDINALITY AS s(rlon, rlat, plon, plat, idx)
		WHERE f.id = ?
		ORDER BY s.idx`,
		arrayLiteral(rlon), arrayLiteral(rlat), arrayLiteral(plon), arrayLiteral(plat), fenceID,
	).Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to evaluate samples: %w", err)
	}
	if len(rows) == 0 {
		return ErrFenceNotFound
	}
	if len(rows) != len(samples) {
		return fmt.Errorf("evaluated %d of %d samples", len(rows), len(samples))
	}

	for _, r := range rows {
		s := &samples[r.Idx-1]
		s.ErrorMeters = r.Meters
		s.RealInside = r.RealInside
		s.PerturbedInside = r.PerturbedInside
	}
	return nil
}

// arrayLiteral renders a Postgres array literal; GORM would otherwise
// expand a slice argument into a parenthesized list.
func arrayLiteral(values []float64) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	b.WriteByte('}')
	return b.String()
}

// GeometryOracle answers in process from the stored fence geometry. It is
// used when the database has no spatial extension.
type GeometryOracle struct {
	db *gorm.DB

	mu     sync.Mutex
	fences map[string]geo.Geometry
}

// NewGeometryOracle creates an in-process oracle that loads fences from db
func NewGeometryOracle(db *gorm.DB) *GeometryOracle {
	return &GeometryOracle{db: db, fences: make(map[string]geo.Geometry)}
}

func (o *GeometryOracle) geometry(ctx context.Context, fenceID string) (geo.Geometry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if g, ok := o.fences[fenceID]; ok {
		return g, nil
	}

	var fence models.Geofence
	if err := o.db.WithContext(ctx).Select("id, geometry").Where("id = ?", fenceID).Take(&fence).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return geo.Geometry{}, ErrFenceNotFound
		}
		return geo.Geometry{}, fmt.Errorf("failed to load fence geometry: %w", err)
	}
	o.fences[fenceID] = fence.Geometry
	return fence.Geometry, nil
}

// Bounds returns the fence bounding box
func (o *GeometryOracle) Bounds(ctx context.Context, fenceID string) (geo.BBox, error) {
	g, err := o.geometry(ctx, fenceID)
	if err != nil {
		return geo.BBox{}, err
	}
	b, ok := g.Bounds()
	if !ok {
		return geo.BBox{}, geo.ErrEmptyGeometry
	}
	return b, nil
}

// Evaluate uses haversine distance and planar point-in-polygon
func (o *GeometryOracle) Evaluate(ctx context.Context, fenceID string, samples []Sample) error {
	g, err := o.geometry(ctx, fenceID)
	if err != nil {
		return err
	}
	for i := range samples {
		s := &samples[i]
		s.ErrorMeters = geo.Haversine(s.Real, s.Perturbed)
		s.RealInside = g.ContainsPoint(s.Real.Lat, s.Real.Lon)
		s.PerturbedInside = g.ContainsPoint(s.Perturbed.Lat, s.Perturbed.Lon)
	}
	return nil
}
