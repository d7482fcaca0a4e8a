// Package intersect provides the ray/DEM intersection algorithm family. All
// variants expose the same two operations: a full intersection search and a
// cheap refinement around an already known approximate hit. Positions and
// lines of sight are expressed in the body frame; results are geodetic points
// on the DEM surface.
package intersect

import (
	"log/slog"

	"github.com/sesteves/rugged-main/internal/dem"
	"github.com/sesteves/rugged-main/internal/geodesy"
	"github.com/sesteves/rugged-main/internal/geom"
	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
)

// AlgorithmID selects an intersection algorithm variant.
type AlgorithmID int

const (
	// Duvenhage is the production algorithm: hierarchical traversal of each
	// tile's min/max pyramid.
	Duvenhage AlgorithmID = iota
	// DuvenhageFlatBody is Duvenhage with interior crossings computed on a
	// locally planar approximation; faster, less accurate on large tiles.
	DuvenhageFlatBody
	// BasicScanForTestsOnly walks every cell along the ray. Reference
	// implementation for validating the others; far too slow for production.
	BasicScanForTestsOnly
	// IgnoreDEMUseEllipsoid intersects the bare ellipsoid.
	IgnoreDEMUseEllipsoid
)

// Algorithm is the capability set shared by all variants.
type Algorithm interface {
	// Intersection computes the first crossing of the ray (position, los)
	// with the DEM surface.
	Intersection(ellipsoid geodesy.Ellipsoid, position, los geom.Vec3) (geodesy.NormalizedGeodeticPoint, error)

	// RefineIntersection improves an approximate crossing, typically after
	// the transforms that produced the ray were shifted slightly (light-time
	// correction).
	RefineIntersection(ellipsoid geodesy.Ellipsoid, position, los geom.Vec3, close geodesy.NormalizedGeodeticPoint) (geodesy.NormalizedGeodeticPoint, error)
}

// Select builds the algorithm for the given identifier. DEM-backed variants
// own a tile cache bounded to maxCachedTiles and fed by updater.
func Select(id AlgorithmID, updater dem.Updater, maxCachedTiles int, logger *slog.Logger) (Algorithm, error) {
	switch id {
	case Duvenhage:
		return newDuvenhage(updater, maxCachedTiles, false, logger), nil
	case DuvenhageFlatBody:
		return newDuvenhage(updater, maxCachedTiles, true, logger), nil
	case BasicScanForTestsOnly:
		return newBasicScan(updater, maxCachedTiles, logger), nil
	case IgnoreDEMUseEllipsoid:
		return constantAltitude{}, nil
	default:
		return nil, ruggederr.New(ruggederr.InternalError)
	}
}

// entryMargin (meters) pads the DEM-maximum entry shell: the inflated
// ellipsoid used for the entry point lies slightly below the true
// iso-altitude surface at mid latitudes.
const entryMargin = 100.0

// demEntryPoint returns the geodetic point where the ray enters the shell at
// the tile's maximum elevation, together with its abscissa along the ray.
func demEntryPoint(e geodesy.Ellipsoid, position, los geom.Vec3, maxElevation, lonRef float64) (geodesy.NormalizedGeodeticPoint, float64, error) {
	shell := maxElevation + entryMargin

	entry, err := e.PointAtAltitude(position, los, shell)
	if err != nil {
		return geodesy.NormalizedGeodeticPoint{}, 0, err
	}
	t := entry.Sub(position).Dot(los)
	if t < 0 {
		if e.Geodetic(position).Altitude < shell {
			// Already inside the shell: the search starts at the spacecraft.
			entry, t = position, 0
		} else {
			return geodesy.NormalizedGeodeticPoint{}, 0, ruggederr.New(ruggederr.DemEntryPointIsBehindSpacecraft)
		}
	}
	return e.NormalizedGeodetic(entry, lonRef), t, nil
}
