package intersect

import (
	"log/slog"
	"math"

	"github.com/sesteves/rugged-main/internal/dem"
	"github.com/sesteves/rugged-main/internal/geodesy"
	"github.com/sesteves/rugged-main/internal/geom"
	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
)

// maxTileIterations bounds the tile-to-tile walk; a ray crossing more tiles
// than this indicates a broken updater or a degenerate geometry.
const maxTileIterations = 1000

// boundaryNudge (meters along the ray) pushes the re-entry point across a
// tile boundary so the next cache lookup lands strictly inside the neighbor.
const boundaryNudge = 1e-2

type duvenhage struct {
	cache    *dem.Cache
	flatBody bool
}

func newDuvenhage(updater dem.Updater, maxCachedTiles int, flatBody bool, logger *slog.Logger) *duvenhage {
	return &duvenhage{
		cache:    dem.NewCache(updater, maxCachedTiles, logger),
		flatBody: flatBody,
	}
}

// Intersection implements Algorithm using the min/max pyramid traversal: the
// ray enters through the shell at the DEM maximum, then tiles are walked one
// by one, each searched by recursive subdivision of its pyramid.
func (d *duvenhage) Intersection(e geodesy.Ellipsoid, position, los geom.Vec3) (geodesy.NormalizedGeodeticPoint, error) {
	lonRef := e.Geodetic(position).Longitude

	// A ray that never reaches the zero-altitude shell cannot reach the DEM
	// search region either.
	g0, err := e.PointOnGround(position, los, 0, lonRef)
	if err != nil {
		return geodesy.NormalizedGeodeticPoint{}, err
	}

	tile, err := d.cache.Tile(g0.Latitude, g0.Longitude)
	if err != nil {
		return geodesy.NormalizedGeodeticPoint{}, err
	}

	entry, tEntry, err := demEntryPoint(e, position, los, tile.MaxElevation(), lonRef)
	if err != nil {
		return geodesy.NormalizedGeodeticPoint{}, err
	}

	maxSeen := tile.MaxElevation()
	for iter := 0; iter < maxTileIterations; iter++ {
		tile, err = d.cache.Tile(entry.Latitude, entry.Longitude)
		if err != nil {
			return geodesy.NormalizedGeodeticPoint{}, err
		}
		maxSeen = math.Max(maxSeen, tile.MaxElevation())

		exit, tExit := tileExit(e, tile, position, los, tEntry, entry.LongitudeReference())

		hit := d.searchTile(e, tile, position, los, tEntry, entry, tExit, exit)
		if hit != nil {
			return *hit, nil
		}

		if exit.Altitude > entry.Altitude && exit.Altitude > maxSeen+entryMargin {
			// Ascending and already above everything encountered.
			return geodesy.NormalizedGeodeticPoint{}, ruggederr.New(ruggederr.LineOfSightDoesNotReachGround)
		}

		tEntry = tExit + boundaryNudge
		entry = e.NormalizedGeodetic(position.Add(los.Scale(tEntry)), entry.LongitudeReference())
	}

	return geodesy.NormalizedGeodeticPoint{}, ruggederr.New(ruggederr.InternalError)
}

// RefineIntersection implements Algorithm: the cell containing the
// approximate hit is intersected exactly; the approximation is kept when the
// shifted ray no longer pierces that patch.
func (d *duvenhage) RefineIntersection(e geodesy.Ellipsoid, position, los geom.Vec3, close geodesy.NormalizedGeodeticPoint) (geodesy.NormalizedGeodeticPoint, error) {
	tile, err := d.cache.Tile(close.Latitude, close.Longitude)
	if err != nil {
		return geodesy.NormalizedGeodeticPoint{}, err
	}
	return refineOnTile(e, tile, position, los, close), nil
}

// refineOnTile recomputes the exact cell intersection around close. Shared
// with the basic scan algorithm.
func refineOnTile(e geodesy.Ellipsoid, tile *dem.Tile, position, los geom.Vec3, close geodesy.NormalizedGeodeticPoint) geodesy.NormalizedGeodeticPoint {
	i := clampCell(tile.LatitudeIndex(close.Latitude), tile.LatitudeRows()-1)
	j := clampCell(tile.LongitudeIndex(close.Longitude), tile.LongitudeColumns()-1)

	// Bracket the approximate hit with a segment extending two cell steps on
	// either side of it.
	closeCart := e.Cartesian(close.GeodeticPoint)
	tClose := closeCart.Sub(position).Dot(los)
	delta := 2 * e.EquatorialRadius() * math.Max(tile.LatitudeStep(), tile.LongitudeStep())

	lonRef := close.LongitudeReference()
	gA := e.NormalizedGeodetic(position.Add(los.Scale(tClose-delta)), lonRef)
	gB := e.NormalizedGeodetic(position.Add(los.Scale(tClose+delta)), lonRef)

	if hit := tile.CellIntersection(gA, gB, i, j); hit != nil {
		return *hit
	}
	return close
}

func clampCell(idx, nCells int) int {
	if idx < 0 {
		return 0
	}
	if idx > nCells-1 {
		return nCells - 1
	}
	return idx
}

// tileExit finds where the ray leaves the tile's latitude/longitude
// rectangle: the nearest boundary crossing past tEntry, or the point where it
// drops below the shell at the tile minimum elevation (less entryMargin) when
// that comes first. When no forward
// crossing exists (corner graze) the entry itself is returned so the caller's
// nudge can make progress.
func tileExit(e geodesy.Ellipsoid, tile *dem.Tile, position, los geom.Vec3, tEntry float64, lonRef float64) (geodesy.NormalizedGeodeticPoint, float64) {
	refCart := position.Add(los.Scale(tEntry))

	best := math.Inf(1)
	for _, lat := range []float64{tile.MinimumLatitude(), tile.MaximumLatitude()} {
		if cross, err := e.PointAtLatitude(position, los, lat, refCart); err == nil {
			if t := cross.Sub(position).Dot(los); t > tEntry+1e-9 && t < best {
				best = t
			}
		}
	}
	for _, lon := range []float64{tile.MinimumLongitude(), tile.MaximumLongitude()} {
		if cross, err := e.PointAtLongitude(position, los, lon); err == nil {
			if t := cross.Sub(position).Dot(los); t > tEntry+1e-9 && t < best {
				best = t
			}
		}
	}

	// Below the tile minimum the ray cannot meet this tile's terrain.
	if bottom, err := e.PointAtAltitude(position, los, tile.MinElevation()-entryMargin); err == nil {
		if t := bottom.Sub(position).Dot(los); t > tEntry+1e-9 && t < best {
			best = t
		}
	}

	if math.IsInf(best, 1) {
		best = tEntry
	}
	return e.NormalizedGeodetic(position.Add(los.Scale(best)), lonRef), best
}

// searchTile runs the pyramid traversal over the ray segment inside one tile.
func (d *duvenhage) searchTile(e geodesy.Ellipsoid, tile *dem.Tile, position, los geom.Vec3,
	tEntry float64, entry geodesy.NormalizedGeodeticPoint,
	tExit float64, exit geodesy.NormalizedGeodeticPoint) *geodesy.NormalizedGeodeticPoint {

	if tExit <= tEntry {
		return nil
	}

	// Work in the tile's longitude frame so segment longitudes compare
	// directly with pyramid split values; the hit is rewrapped to the
	// caller's reference on the way out.
	callerRef := entry.LongitudeReference()
	entry = rewrap(entry, tile.CenterLongitude())
	exit = rewrap(exit, tile.CenterLongitude())

	// Side entry below the local terrain: the ray is already underground.
	// Intersect the entry cell directly; a patch miss means the entry point
	// itself is the grazing contact.
	if tile.Location(entry.Latitude, entry.Longitude) == dem.HasInterpolationNeighbors {
		if h, err := tile.InterpolateElevation(entry.Latitude, entry.Longitude); err == nil && entry.Altitude < h {
			i := clampCell(tile.LatitudeIndex(entry.Latitude), tile.LatitudeRows()-1)
			j := clampCell(tile.LongitudeIndex(entry.Longitude), tile.LongitudeColumns()-1)
			if hit := tile.CellIntersection(entry, exit, i, j); hit != nil {
				out := rewrap(*hit, callerRef)
				return &out
			}
			hit := rewrap(entry, callerRef)
			return &hit
		}
	}

	if hit := d.recurse(e, tile, tile.MinMaxTree(), position, los, tEntry, entry, tExit, exit); hit != nil {
		out := rewrap(*hit, callerRef)
		return &out
	}
	return nil
}

// rewrap re-normalizes a point's longitude around a new reference.
func rewrap(g geodesy.NormalizedGeodeticPoint, lonRef float64) geodesy.NormalizedGeodeticPoint {
	return geodesy.NewNormalizedGeodeticPoint(g.Latitude, g.Longitude, g.Altitude, lonRef)
}

// recurse walks one pyramid node with the ray segment [t0, t1] whose geodetic
// endpoints are g0 and g1. Children are visited nearest-first along the ray.
func (d *duvenhage) recurse(e geodesy.Ellipsoid, tile *dem.Tile, node *dem.MinMaxNode, position, los geom.Vec3,
	t0 float64, g0 geodesy.NormalizedGeodeticPoint,
	t1 float64, g1 geodesy.NormalizedGeodeticPoint) *geodesy.NormalizedGeodeticPoint {

	if node == nil || t1 <= t0 {
		return nil
	}

	// The minimum-altitude probe samples three points of a unimodal curve;
	// the margin absorbs its slight overestimate so grazing rays are never
	// pruned away.
	const pruneMargin = 10.0
	if segmentMinAltitude(e, position, los, t0, g0.Altitude, t1, g1.Altitude) > node.HMax+pruneMargin {
		return nil
	}

	if node.Leaf() {
		i, j := node.CellIndices()
		return tile.CellIntersection(g0, g1, i, j)
	}

	entryBelow := d.entrySide(node, g0, g1)
	first, second := node.Below, node.Above
	if !entryBelow {
		first, second = node.Above, node.Below
	}

	tc, gc, ok := d.splitCrossing(e, node, position, los, t0, g0, t1, g1)
	if !ok {
		// Whole segment on the entry side.
		return d.recurse(e, tile, first, position, los, t0, g0, t1, g1)
	}

	if hit := d.recurse(e, tile, first, position, los, t0, g0, tc, gc); hit != nil {
		return hit
	}
	return d.recurse(e, tile, second, position, los, tc, gc, t1, g1)
}

// entrySide reports whether the segment starts on the low-index side of the
// node's split, falling back to the far endpoint when the start lies on the
// split line itself.
func (d *duvenhage) entrySide(node *dem.MinMaxNode, g0, g1 geodesy.NormalizedGeodeticPoint) bool {
	var v0, v1 float64
	if node.SplitAlongLatitude {
		v0, v1 = g0.Latitude, g1.Latitude
	} else {
		v0, v1 = g0.Longitude, g1.Longitude
	}
	if v0 != node.SplitValue {
		return v0 < node.SplitValue
	}
	return v1 < node.SplitValue
}

// splitCrossing finds the crossing of the ray with the node's dividing
// latitude or longitude, strictly inside the segment. The flat-body variant
// interpolates linearly in geodetic space; the full variant solves the exact
// cone or plane crossing.
func (d *duvenhage) splitCrossing(e geodesy.Ellipsoid, node *dem.MinMaxNode, position, los geom.Vec3,
	t0 float64, g0 geodesy.NormalizedGeodeticPoint,
	t1 float64, g1 geodesy.NormalizedGeodeticPoint) (float64, geodesy.NormalizedGeodeticPoint, bool) {

	var v0, v1 float64
	if node.SplitAlongLatitude {
		v0, v1 = g0.Latitude, g1.Latitude
	} else {
		v0, v1 = g0.Longitude, g1.Longitude
	}
	if (v0-node.SplitValue)*(v1-node.SplitValue) >= 0 {
		return 0, geodesy.NormalizedGeodeticPoint{}, false
	}

	lonRef := g0.LongitudeReference()

	if !d.flatBody {
		var cross geom.Vec3
		var err error
		mid := position.Add(los.Scale(0.5 * (t0 + t1)))
		if node.SplitAlongLatitude {
			cross, err = e.PointAtLatitude(position, los, node.SplitValue, mid)
		} else {
			cross, err = e.PointAtLongitude(position, los, node.SplitValue)
		}
		if err == nil {
			if tc := cross.Sub(position).Dot(los); tc > t0 && tc < t1 {
				return tc, e.NormalizedGeodetic(cross, lonRef), true
			}
		}
		// Numerical fallthrough: use the linear estimate below.
	}

	s := (node.SplitValue - v0) / (v1 - v0)
	tc := t0 + s*(t1-t0)
	gc := geodesy.NewNormalizedGeodeticPoint(
		g0.Latitude+s*(g1.Latitude-g0.Latitude),
		g0.Longitude+s*(g1.Longitude-g0.Longitude),
		g0.Altitude+s*(g1.Altitude-g0.Altitude),
		lonRef,
	)
	return tc, gc, true
}

// segmentMinAltitude bounds from below the geodetic altitude of the ray over
// [t0, t1]. Altitude along a straight ray is unimodal: the endpoints plus the
// closest-approach point cover the minimum.
func segmentMinAltitude(e geodesy.Ellipsoid, position, los geom.Vec3, t0, alt0, t1, alt1 float64) float64 {
	minAlt := math.Min(alt0, alt1)
	if tStar := -position.Dot(los); tStar > t0 && tStar < t1 {
		interior := e.Geodetic(position.Add(los.Scale(tStar))).Altitude
		minAlt = math.Min(minAlt, interior)
	}
	return minAlt
}
