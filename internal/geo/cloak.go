package geo

import "math"

// CloakGridSize is the quantization step, in degrees, applied by Cloak
const CloakGridSize = 0.001

// Cloak snaps a coordinate component down to the cloaking grid and rounds
// the result to 5 decimals.
func Cloak(v float64) float64 {
	return RoundTo(math.Floor(v/CloakGridSize)*CloakGridSize, 5)
}

// CloakPoint applies Cloak to both components
func CloakPoint(p LatLon) LatLon {
	return LatLon{Lat: Cloak(p.Lat), Lon: Cloak(p.Lon)}
}

// RoundTo rounds v to the given number of decimals
func RoundTo(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
