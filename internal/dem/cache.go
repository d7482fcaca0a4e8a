package dem

import (
	"log/slog"
	"math"

	"github.com/sesteves/rugged-main/internal/metrics"
	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
)

// Cache is a bounded tile cache. Lookups scan the live tiles most recently
// used first; on a miss the updater is invoked to build a fresh tile, which
// may evict the least recently used one.
//
// A Cache is not safe for concurrent use: the engine contract is one engine
// (and therefore one cache) per worker.
type Cache struct {
	updater  Updater
	maxTiles int
	tiles    []*Tile // most recently used first
	logger   *slog.Logger
}

// NewCache creates a cache bounded to maxTiles live tiles.
func NewCache(updater Updater, maxTiles int, logger *slog.Logger) *Cache {
	if maxTiles < 1 {
		maxTiles = 1
	}
	return &Cache{
		updater:  updater,
		maxTiles: maxTiles,
		logger:   logger,
	}
}

// Len returns the number of live tiles.
func (c *Cache) Len() int {
	return len(c.tiles)
}

// Tile returns a tile that covers (lat, lon) with full interpolation
// neighbors, loading it through the updater when no live tile qualifies.
func (c *Cache) Tile(lat, lon float64) (*Tile, error) {
	for i, t := range c.tiles {
		if t.Location(lat, lon) == HasInterpolationNeighbors {
			if i > 0 {
				c.touch(i)
			}
			metrics.IncTileCacheHits()
			return t, nil
		}
	}

	metrics.IncTileCacheMisses()
	tile := NewTile()
	if err := c.updater.UpdateTile(lat, lon, tile); err != nil {
		deg := 180 / math.Pi
		return nil, ruggederr.Wrap(ruggederr.NoDEMData, err, lat*deg, lon*deg)
	}
	if err := tile.Complete(); err != nil {
		return nil, err
	}
	if tile.Location(lat, lon) != HasInterpolationNeighbors {
		deg := 180 / math.Pi
		return nil, ruggederr.New(ruggederr.TileWithoutRequiredNeighbors, lat*deg, lon*deg)
	}

	c.tiles = append([]*Tile{tile}, c.tiles...)
	if len(c.tiles) > c.maxTiles {
		evicted := c.tiles[len(c.tiles)-1]
		c.tiles = c.tiles[:len(c.tiles)-1]
		metrics.IncTileCacheEvictions()
		c.logger.Debug("tile evicted",
			"component", "dem",
			"min_latitude_deg", evicted.MinimumLatitude()*180/math.Pi,
			"min_longitude_deg", evicted.MinimumLongitude()*180/math.Pi,
		)
	}
	metrics.SetTileCacheTiles(len(c.tiles))

	c.logger.Debug("tile loaded",
		"component", "dem",
		"latitude_deg", lat*180/math.Pi,
		"longitude_deg", lon*180/math.Pi,
		"rows", tile.LatitudeRows(),
		"columns", tile.LongitudeColumns(),
		"min_elevation_m", tile.MinElevation(),
		"max_elevation_m", tile.MaxElevation(),
	)

	return tile, nil
}

// touch moves the tile at position i to the front of the LRU order.
func (c *Cache) touch(i int) {
	t := c.tiles[i]
	copy(c.tiles[1:i+1], c.tiles[:i])
	c.tiles[0] = t
}
