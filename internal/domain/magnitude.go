package domain

import "math"

// MagnitudeColor maps a magnitude to the marker colour used on the map.
func MagnitudeColor(mag float64) string {
	switch {
	case mag >= 7:
		return "darkred"
	case mag >= 6:
		return "red"
	case mag >= 5:
		return "orange"
	case mag >= 4:
		return "yellow"
	case mag >= 3:
		return "lightgreen"
	default:
		return "blue"
	}
}

// MarkerRadius is the circle radius for a regular map marker.
func MarkerRadius(mag float64) float64 {
	return math.Max(4, mag*1.5)
}

// FocusRadius is the circle radius for a single focused marker.
func FocusRadius(mag float64) float64 {
	return math.Max(6, mag*2)
}
