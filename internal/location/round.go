package location

import (
	"math"
	"strconv"
)

// CoordinateDecimals is the number of decimals coordinates are reported with (~1 cm).
const CoordinateDecimals = 7

// Round rounds a coordinate to CoordinateDecimals places.
func Round(v float64) float64 {
	const scale = 1e7
	return math.Round(v*scale) / scale
}

// FormatCoordinate renders a coordinate with exactly CoordinateDecimals places.
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(Round(v), 'f', CoordinateDecimals, 64)
}

// ValidCoordinates reports whether lat/lng are within WGS84 bounds.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lng)
}
