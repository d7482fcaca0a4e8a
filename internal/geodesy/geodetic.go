// Package geodesy provides the reference ellipsoid and geodetic coordinate
// machinery for ground localization: geodetic↔Cartesian conversions and the
// ray/iso-surface intersections the DEM traversal is built on.
package geodesy

import (
	"math"

	"github.com/sesteves/rugged-main/internal/geom"
)

// GeodeticPoint is a position given as geodetic latitude, longitude (radians)
// and altitude above the reference ellipsoid (meters).
type GeodeticPoint struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Zenith returns the unit vector normal to the ellipsoid at the point,
// expressed in the body frame.
func (g GeodeticPoint) Zenith() geom.Vec3 {
	cosLat := math.Cos(g.Latitude)
	return geom.Vec3{
		X: cosLat * math.Cos(g.Longitude),
		Y: cosLat * math.Sin(g.Longitude),
		Z: math.Sin(g.Latitude),
	}
}

// NormalizedGeodeticPoint is a geodetic point whose longitude has been
// unwrapped around a reference longitude, so that paths crossing the
// antimeridian keep a continuous longitude instead of jumping by 2π.
type NormalizedGeodeticPoint struct {
	GeodeticPoint
	lonRef float64
}

// NewNormalizedGeodeticPoint builds a normalized point whose longitude is
// brought into (lonRef-π, lonRef+π].
func NewNormalizedGeodeticPoint(lat, lon, alt, lonRef float64) NormalizedGeodeticPoint {
	return NormalizedGeodeticPoint{
		GeodeticPoint: GeodeticPoint{
			Latitude:  lat,
			Longitude: NormalizeLongitude(lon, lonRef),
			Altitude:  alt,
		},
		lonRef: lonRef,
	}
}

// LongitudeReference returns the reference longitude the point was unwrapped
// around.
func (n NormalizedGeodeticPoint) LongitudeReference() float64 {
	return n.lonRef
}

// NormalizeLongitude brings lon into (ref-π, ref+π].
func NormalizeLongitude(lon, ref float64) float64 {
	for lon <= ref-math.Pi {
		lon += 2 * math.Pi
	}
	for lon > ref+math.Pi {
		lon -= 2 * math.Pi
	}
	return lon
}
