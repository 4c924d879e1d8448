package geo

import "math"

// EarthRadiusMeters is the equatorial radius used for haversine distances
const EarthRadiusMeters = 6378137.0

// LatLon is a WGS 84 coordinate pair
type LatLon struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Haversine returns the great-circle distance between two coordinates in meters
func Haversine(a, b LatLon) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// SphericalCenter returns the center of a set of coordinates computed on the
// unit sphere, which stays correct across the antimeridian.
func SphericalCenter(points []LatLon) (LatLon, bool) {
	if len(points) == 0 {
		return LatLon{}, false
	}

	var x, y, z float64
	for _, p := range points {
		lat, lon := toRad(p.Lat), toRad(p.Lon)
		x += math.Cos(lat) * math.Cos(lon)
		y += math.Cos(lat) * math.Sin(lon)
		z += math.Sin(lat)
	}
	n := float64(len(points))
	x, y, z = x/n, y/n, z/n

	lon := math.Atan2(y, x)
	lat := math.Atan2(z, math.Sqrt(x*x+y*y))
	return LatLon{Lat: toDeg(lat), Lon: toDeg(lon)}, true
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
