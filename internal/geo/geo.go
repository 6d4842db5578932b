// Package geo provides the WGS84 helpers the monitor and reporting layers
// need: great-circle distance and heading normalization.
package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// ErrInvalidCoordinates is returned when a coordinate string cannot be parsed.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// DistanceKm returns the great-circle distance in kilometers between two
// WGS84 positions.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// NormalizeHeading converts a true heading plus magnetic variation into a
// magnetic heading in [0, 360).
func NormalizeHeading(trueHeadingDeg, magneticVariationDeg float64) float64 {
	h := math.Mod(trueHeadingDeg-magneticVariationDeg, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// CoordFromString parses a "lat,lon" string into its components.
func CoordFromString(coords string) (lat, lon float64, err error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidCoordinates
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinates
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinates
	}
	return lat, lon, nil
}
