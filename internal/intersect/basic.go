package intersect

import (
	"log/slog"
	"math"

	"github.com/sesteves/rugged-main/internal/dem"
	"github.com/sesteves/rugged-main/internal/geodesy"
	"github.com/sesteves/rugged-main/internal/geom"
	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
)

// basicScan is the brute-force reference algorithm: it marches along the ray
// in sub-cell steps and intersects every touched cell, returning the first
// hit. Kept only to validate the pyramid traversal in tests.
type basicScan struct {
	cache *dem.Cache
}

func newBasicScan(updater dem.Updater, maxCachedTiles int, logger *slog.Logger) *basicScan {
	return &basicScan{cache: dem.NewCache(updater, maxCachedTiles, logger)}
}

// Intersection implements Algorithm.
func (b *basicScan) Intersection(e geodesy.Ellipsoid, position, los geom.Vec3) (geodesy.NormalizedGeodeticPoint, error) {
	lonRef := e.Geodetic(position).Longitude

	g0, err := e.PointOnGround(position, los, 0, lonRef)
	if err != nil {
		return geodesy.NormalizedGeodeticPoint{}, err
	}

	tile, err := b.cache.Tile(g0.Latitude, g0.Longitude)
	if err != nil {
		return geodesy.NormalizedGeodeticPoint{}, err
	}

	entry, tEntry, err := demEntryPoint(e, position, los, tile.MaxElevation(), lonRef)
	if err != nil {
		return geodesy.NormalizedGeodeticPoint{}, err
	}

	maxSeen := tile.MaxElevation()
	for iter := 0; iter < maxTileIterations; iter++ {
		tile, err = b.cache.Tile(entry.Latitude, entry.Longitude)
		if err != nil {
			return geodesy.NormalizedGeodeticPoint{}, err
		}
		maxSeen = math.Max(maxSeen, tile.MaxElevation())

		exit, tExit := tileExit(e, tile, position, los, tEntry, entry.LongitudeReference())

		if hit := b.scanTile(e, tile, position, los, tEntry, tExit, entry.LongitudeReference()); hit != nil {
			return *hit, nil
		}

		if exit.Altitude > entry.Altitude && exit.Altitude > maxSeen+entryMargin {
			return geodesy.NormalizedGeodeticPoint{}, ruggederr.New(ruggederr.LineOfSightDoesNotReachGround)
		}

		tEntry = tExit + boundaryNudge
		entry = e.NormalizedGeodetic(position.Add(los.Scale(tEntry)), entry.LongitudeReference())
	}

	return geodesy.NormalizedGeodeticPoint{}, ruggederr.New(ruggederr.InternalError)
}

// scanTile marches the segment [tEntry, tExit] in steps of half a cell,
// intersecting the cells under each sub-segment in order.
func (b *basicScan) scanTile(e geodesy.Ellipsoid, tile *dem.Tile, position, los geom.Vec3, tEntry, tExit float64, callerRef float64) *geodesy.NormalizedGeodeticPoint {
	if tExit <= tEntry {
		return nil
	}

	step := 0.5 * e.EquatorialRadius() * math.Min(tile.LatitudeStep(), tile.LongitudeStep())
	n := int(math.Ceil((tExit-tEntry)/step)) + 1

	center := tile.CenterLongitude()
	prevT := tEntry
	prev := rewrap(e.NormalizedGeodetic(position.Add(los.Scale(prevT)), center), center)
	prevI, prevJ := -1, -1

	for k := 1; k <= n; k++ {
		curT := math.Min(tEntry+float64(k)*step, tExit)
		cur := e.NormalizedGeodetic(position.Add(los.Scale(curT)), center)

		i0 := tile.LatitudeIndex(prev.Latitude)
		j0 := tile.LongitudeIndex(prev.Longitude)
		i1 := tile.LatitudeIndex(cur.Latitude)
		j1 := tile.LongitudeIndex(cur.Longitude)

		for _, cell := range [][2]int{{i0, j0}, {i1, j1}} {
			if cell[0] == prevI && cell[1] == prevJ {
				continue
			}
			if hit := tile.CellIntersection(prev, cur, cell[0], cell[1]); hit != nil {
				out := rewrap(*hit, callerRef)
				return &out
			}
			prevI, prevJ = cell[0], cell[1]
		}

		prevT, prev = curT, cur
	}
	return nil
}

// RefineIntersection implements Algorithm.
func (b *basicScan) RefineIntersection(e geodesy.Ellipsoid, position, los geom.Vec3, close geodesy.NormalizedGeodeticPoint) (geodesy.NormalizedGeodeticPoint, error) {
	tile, err := b.cache.Tile(close.Latitude, close.Longitude)
	if err != nil {
		return geodesy.NormalizedGeodeticPoint{}, err
	}
	return refineOnTile(e, tile, position, los, close), nil
}
