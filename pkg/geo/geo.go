// Package geo provides great-circle distance math for proximity checks.
package geo

import (
	"math"

	appErrors "github.com/unihall/attendance-api/pkg/errors"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371008.8

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within coordinate bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the great-circle surface distance between two points
// in meters using the haversine formula.
func Distance(a, b Point) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, appErrors.ErrInvalidCoordinate
	}

	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLon*sinLon

	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h))), nil
}

// WithinRadius reports whether point lies within radiusMeters of anchor.
func WithinRadius(anchor, point Point, radiusMeters float64) (bool, error) {
	d, err := Distance(anchor, point)
	if err != nil {
		return false, err
	}
	return d <= radiusMeters, nil
}
