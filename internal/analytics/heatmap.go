package analytics

import (
	"time"

	"github.com/geoaware/backend/internal/geo"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// HeatmapWindow is how far back entry events feed the heatmap
const HeatmapWindow = 30 * 24 * time.Hour

// HeatmapPoint is one entry location
type HeatmapPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BuildHeatmap turns entry locations into a GeoJSON FeatureCollection of
// unit-weight points.
func BuildHeatmap(points []HeatmapPoint) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(points))}
	for _, p := range points {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(geo.SRID),
			Properties: map[string]interface{}{"weight": 1},
		})
	}
	return fc
}
