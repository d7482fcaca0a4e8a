package intersect

import (
	"github.com/sesteves/rugged-main/internal/geodesy"
	"github.com/sesteves/rugged-main/internal/geom"
)

// constantAltitude intersects an ellipsoid shell at a fixed altitude instead
// of the DEM. The zero value is the ignore-DEM algorithm (bare ellipsoid);
// NewFixedAltitude builds the offset variant inverse localization uses for
// its reference quadrilateral.
type constantAltitude struct {
	altitude float64
}

// NewFixedAltitude returns the algorithm intersecting the ellipsoid shell at
// the given altitude.
func NewFixedAltitude(altitude float64) Algorithm {
	return constantAltitude{altitude: altitude}
}

// Intersection implements Algorithm.
func (c constantAltitude) Intersection(e geodesy.Ellipsoid, position, los geom.Vec3) (geodesy.NormalizedGeodeticPoint, error) {
	lonRef := e.Geodetic(position).Longitude
	return e.PointOnGround(position, los, c.altitude, lonRef)
}

// RefineIntersection implements Algorithm: the shell intersection is already
// exact, so refinement recomputes it with the (possibly shifted) ray.
func (c constantAltitude) RefineIntersection(e geodesy.Ellipsoid, position, los geom.Vec3, close geodesy.NormalizedGeodeticPoint) (geodesy.NormalizedGeodeticPoint, error) {
	return e.PointOnGround(position, los, c.altitude, close.LongitudeReference())
}
