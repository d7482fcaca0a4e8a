package scenario

import (
	"fmt"
	"math"

	"github.com/westphae/geomag/pkg/egm96"

	"github.com/sesteves/rugged-main/internal/dem"
)

// updater builds the tile updater for the synthetic DEM: tiles aligned on a
// regular grid of tileSizeDeg, padded by one sample row and column on every
// side so a query on a grid boundary still falls strictly inside its tile.
func (d *DEMDef) updater() (dem.Updater, error) {
	elevationAt, err := d.elevationFunc()
	if err != nil {
		return nil, err
	}

	tileSize := d.TileSizeDeg * math.Pi / 180
	if tileSize <= 0 {
		tileSize = math.Pi / 180
	}
	samples := d.SamplesPerTile
	if samples < 2 {
		samples = 64
	}
	step := tileSize / float64(samples-1)

	return dem.UpdaterFunc(func(lat, lon float64, tile dem.UpdatableTile) error {
		baseLat := math.Floor(lat/tileSize) * tileSize
		baseLon := math.Floor(lon/tileSize) * tileSize

		rows := samples + 2
		cols := samples + 2
		minLat := baseLat - step
		minLon := baseLon - step

		tile.SetGeometry(minLat, minLon, step, step, rows, cols)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				h := elevationAt(minLat+float64(i)*step, minLon+float64(j)*step)
				if err := tile.SetElevation(i, j, h); err != nil {
					return err
				}
			}
		}
		return nil
	}), nil
}

// elevationFunc returns the synthetic elevation sampler (radians in, meters
// above the ellipsoid out).
func (d *DEMDef) elevationFunc() (func(lat, lon float64) float64, error) {
	var base func(lat, lon float64) float64

	switch d.Kind {
	case "", "constant":
		h := d.Elevation
		base = func(lat, lon float64) float64 { return h }
	case "cone":
		if d.RadiusDeg <= 0 {
			return nil, fmt.Errorf("cone dem: radiusDeg must be positive")
		}
		centerLat := d.OriginLatDeg * math.Pi / 180
		centerLon := d.OriginLonDeg * math.Pi / 180
		radius := d.RadiusDeg * math.Pi / 180
		floor := d.Elevation
		peak := d.PeakElevation
		base = func(lat, lon float64) float64 {
			dLat := lat - centerLat
			dLon := (lon - centerLon) * math.Cos(centerLat)
			dist := math.Sqrt(dLat*dLat + dLon*dLon)
			if dist >= radius {
				return floor
			}
			return floor + (peak-floor)*(1-dist/radius)
		}
	default:
		return nil, fmt.Errorf("unknown dem kind %q", d.Kind)
	}

	if !d.HeightsAboveMSL {
		return base, nil
	}

	// Elevations are mean-sea-level heights: raise them onto the ellipsoid
	// with the local EGM96 geoid undulation.
	return func(lat, lon float64) float64 {
		h := base(lat, lon)
		loc := egm96.NewLocationGeodetic(lat*180/math.Pi, lon*180/math.Pi, 0)
		msl, err := loc.HeightAboveMSL()
		if err != nil {
			return h
		}
		// A zero ellipsoidal height sits at -undulation relative to MSL.
		return h - msl
	}, nil
}
