package utils

import (
	"math"
	"time"
)

// Location represents a geographical coordinate
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewLocation returns nil unless both coordinates are set
func NewLocation(lat, lng *float64) *Location {
	if lat == nil || lng == nil {
		return nil
	}
	return &Location{Latitude: *lat, Longitude: *lng}
}

// HaversineDistance calculates the distance between two points on Earth using the Haversine formula
// Returns distance in kilometers
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371 // Earth's radius in kilometers

	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	deltaLat := lat2Rad - lat1Rad
	deltaLon := lon2Rad - lon1Rad

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}

// DistanceKm returns the distance between two locations and false when either is unknown
func DistanceKm(a, b *Location) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	return HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude), true
}

// BoundingBox returns the lat/lng box enclosing a radius around center. It
// is used as a cheap SQL pre-filter before the exact Haversine check.
func BoundingBox(center Location, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	const kmPerDegree = 111.32
	dLat := radiusKm / kmPerDegree
	cos := math.Cos(center.Latitude * math.Pi / 180)
	dLng := 180.0
	if cos > 1e-6 {
		dLng = math.Min(180, radiusKm/(kmPerDegree*cos))
	}
	return center.Latitude - dLat, center.Latitude + dLat, center.Longitude - dLng, center.Longitude + dLng
}

// IsLocationValid checks if the provided coordinates are valid
func IsLocationValid(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// IsLocationRecent checks if the location was updated recently (within last 30 minutes)
func IsLocationRecent(lastUpdate *time.Time) bool {
	if lastUpdate == nil {
		return false
	}
	return lastUpdate.After(time.Now().Add(-30 * time.Minute))
}

// GetDefaultSearchRadius returns the default worker search radius in kilometers
func GetDefaultSearchRadius() float64 {
	return 10.0
}

// GetMaxSearchRadius returns the maximum allowed search radius in kilometers
func GetMaxSearchRadius() float64 {
	return 100.0
}

// ValidateSearchRadius checks if the search radius is within acceptable limits
func ValidateSearchRadius(radius float64) bool {
	return radius > 0 && radius <= GetMaxSearchRadius()
}
