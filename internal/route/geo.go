// Package route turns recorded position samples into route metrics.
//
// Coordinates are [longitude, latitude] in degrees throughout. Distances use a
// spherical earth with mean radius 6371 km.
package route

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// EarthRadiusMeters is the mean earth radius used for great-circle distances.
const EarthRadiusMeters = 6371e3

// ErrInvalidSample indicates a sample with non-finite or out-of-range values.
var ErrInvalidSample = errors.New("invalid route sample")

// Point is a longitude/latitude pair.
type Point struct {
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
}

// Sample is one recorded position.
type Sample struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	// Elevation in meters, when the device reported it.
	Elevation *float64 `json:"elevation,omitempty"`
	// Speed in km/h, when the device reported it.
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the sample position.
func (s Sample) Point() Point {
	return Point{Longitude: s.Longitude, Latitude: s.Latitude}
}

// ValidateSample rejects non-finite or out-of-range values.
func ValidateSample(s Sample) error {
	if !finite(s.Longitude) || !finite(s.Latitude) {
		return fmt.Errorf("%w: non-finite coordinates", ErrInvalidSample)
	}
	if s.Longitude < -180 || s.Longitude > 180 || s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidSample)
	}
	if s.Elevation != nil && !finite(*s.Elevation) {
		return fmt.Errorf("%w: non-finite elevation", ErrInvalidSample)
	}
	if s.Speed != nil && (!finite(*s.Speed) || *s.Speed < 0) {
		return fmt.Errorf("%w: invalid speed", ErrInvalidSample)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSample)
	}
	return nil
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Clamp rounding noise for antipodal points.
	h = math.Min(1, h)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// GeoFence is a circular region.
type GeoFence struct {
	Center       Point   `json:"center"`
	RadiusMeters float64 `json:"radiusMeters" validate:"gt=0"`
}

// Contains reports whether p lies within the fence, boundary included.
func (g GeoFence) Contains(p Point) bool {
	return Distance(g.Center, p) <= g.RadiusMeters
}

// AnyWithin reports whether any sample falls inside any fence.
func AnyWithin(samples []Sample, fences []GeoFence) bool {
	for _, s := range samples {
		p := s.Point()
		for _, f := range fences {
			if f.Contains(p) {
				return true
			}
		}
	}
	return false
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
