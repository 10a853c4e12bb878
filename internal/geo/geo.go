// Package geo provides pure great-circle geometry over WGS-84 style
// latitude/longitude pairs. It is intentionally small and dependency-free:
// no I/O, no logging, deterministic results, safe for concurrent use.
//
// Distances use the haversine formula, which is accurate to well under the
// tens-of-meters positioning error this application tolerates.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by DistanceKm.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate is returned when a latitude falls outside [-90, 90]
// or a longitude falls outside [-180, 180]. Callers must not retry with the
// same input; this is a programming or client-input error, never transient.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports ErrInvalidCoordinate (wrapped with the offending values)
// when the coordinate is outside the valid latitude/longitude ranges.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidCoordinate, c.Lat, c.Lng)
	}
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return fmt.Errorf("%w: NaN component", ErrInvalidCoordinate)
	}
	return nil
}

// DistanceKm returns the great-circle (haversine) distance between a and b
// in kilometers. It is symmetric (DistanceKm(a,b) == DistanceKm(b,a)) and
// zero iff a == b within floating tolerance.
//
// Both coordinates must be valid; invalid input returns ErrInvalidCoordinate.
func DistanceKm(a, b Coordinate) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c, nil
}

// WithinRadius reports whether point lies within radiusKm of center.
// The boundary is inclusive: a point exactly radiusKm away is inside.
func WithinRadius(center, point Coordinate, radiusKm float64) (bool, error) {
	d, err := DistanceKm(center, point)
	if err != nil {
		return false, err
	}
	return d <= radiusKm, nil
}

// BoundingBox returns a latitude/longitude box that fully contains the
// circle of radiusKm around center. It is a coarse pre-filter for store
// queries; exact membership is still decided by WithinRadius.
//
// Near the poles the longitude span degenerates; the box is clamped to the
// full longitude range there, which only makes the pre-filter less selective.
//
// A circle crossing the antimeridian produces wrapped longitude bounds with
// minLng > maxLng; the box is then the union of [minLng, 180] and
// [-180, maxLng]. Callers translating the box to a range predicate must
// handle that case (see WrapsAntimeridian).
func BoundingBox(center Coordinate, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	latDelta := radiusKm / EarthRadiusKm * 180 / math.Pi

	minLat = math.Max(center.Lat-latDelta, -90)
	maxLat = math.Min(center.Lat+latDelta, 90)

	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 1e-9 {
		return minLat, maxLat, -180, 180
	}
	lngDelta := latDelta / cosLat
	if lngDelta >= 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, wrapLng(center.Lng - lngDelta), wrapLng(center.Lng + lngDelta)
}

// WrapsAntimeridian reports whether a longitude range from BoundingBox
// crosses the ±180° meridian and therefore denotes two disjoint intervals.
func WrapsAntimeridian(minLng, maxLng float64) bool {
	return minLng > maxLng
}

// wrapLng normalizes a longitude into [-180, 180].
func wrapLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}
