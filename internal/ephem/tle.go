package ephem

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/sesteves/rugged-main/internal/geom"
)

func vecFromKm(x, y, z, scale float64) geom.Vec3 {
	return geom.Vec3{X: x * scale, Y: y * scale, Z: z * scale}
}

// SamplesFromTLE propagates a two-line element set with SGP4 and returns a
// position/velocity sample table covering [start, start+(count-1)·step].
//
// SGP4 outputs TEME coordinates; they are used directly as the inertial
// frame, the same simplification applied on the frames side (GMST-only Earth
// rotation), so the two stay consistent to within a few tens of meters on
// the ground.
func SamplesFromTLE(line1, line2 string, start time.Time, step time.Duration, count int) ([]PVSample, error) {
	if count < 2 {
		return nil, fmt.Errorf("ephemeris sampling needs at least 2 samples, got %d", count)
	}
	if step <= 0 {
		return nil, fmt.Errorf("ephemeris sampling step must be positive, got %s", step)
	}
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE: %w", err)
	}

	sat := satellite.TLEToSat(strings.TrimSpace(line1), strings.TrimSpace(line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed: code=%d %s", sat.Error, sat.ErrorStr)
	}

	samples := make([]PVSample, 0, count)
	for i := 0; i < count; i++ {
		t := start.Add(time.Duration(i) * step).UTC()
		pos, vel := satellite.Propagate(sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

		// Propagate takes the satellite by value, so SGP4 error codes are
		// invisible here; failures show up as NaN/Inf or absurd magnitudes.
		mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
		if math.IsNaN(mag) || math.IsInf(mag, 0) || mag < 6200.0 || mag > 50000.0 {
			return nil, fmt.Errorf("sgp4 propagation failed at %s: position magnitude %.1f km", t.Format(time.RFC3339), mag)
		}

		const kmToM = 1000.0
		samples = append(samples, PVSample{
			Date:     t,
			Position: vecFromKm(pos.X, pos.Y, pos.Z, kmToM),
			Velocity: vecFromKm(vel.X, vel.Y, vel.Z, kmToM),
		})
	}
	return samples, nil
}

// validateTLELines performs basic format validation, because go-satellite
// terminates the process on malformed input instead of returning an error.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got %q", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got %q", line2[0])
	}
	return nil
}
