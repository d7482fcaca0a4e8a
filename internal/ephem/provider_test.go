package ephem

import (
	"math"
	"testing"
	"time"

	"github.com/sesteves/rugged-main/internal/frames"
	"github.com/sesteves/rugged-main/internal/geom"
	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
)

func testPair(t *testing.T) frames.Pair {
	t.Helper()
	pair, err := frames.NewPair(frames.EME2000, frames.ITRF)
	if err != nil {
		t.Fatalf("NewPair: %v", err)
	}
	return pair
}

// quadraticSamples builds PV samples following p(t) = p0 + v0·t + ½a·t², a
// polynomial Lagrange interpolation of sufficient order reproduces exactly.
func quadraticSamples(t0 time.Time, n int, step time.Duration) []PVSample {
	p0 := geom.Vec3{X: 7.0e6, Y: 1000, Z: -2000}
	v0 := geom.Vec3{X: 10, Y: 7500, Z: -20}
	acc := geom.Vec3{X: -8.0, Y: 0.1, Z: 0.05}

	samples := make([]PVSample, n)
	for i := range samples {
		dt := float64(i) * step.Seconds()
		samples[i] = PVSample{
			Date:     t0.Add(time.Duration(i) * step),
			Position: p0.Add(v0.Scale(dt)).Add(acc.Scale(0.5 * dt * dt)),
			Velocity: v0.Add(acc.Scale(dt)),
		}
	}
	return samples
}

func constantAttitude(t0 time.Time, n int, step time.Duration, q geom.Rotation) []AttitudeSample {
	samples := make([]AttitudeSample, n)
	for i := range samples {
		samples[i] = AttitudeSample{Date: t0.Add(time.Duration(i) * step), Rotation: q}
	}
	return samples
}

func TestScToInertialInterpolation(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pv := quadraticSamples(t0, 11, time.Second)
	att := constantAttitude(t0, 11, time.Second, geom.Identity)

	p, err := NewProvider(testPair(t), pv, 4, att, 2)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	// Between samples: order-4 Lagrange reproduces a quadratic exactly.
	query := t0.Add(3700 * time.Millisecond)
	tr, err := p.ScToInertial(query)
	if err != nil {
		t.Fatalf("ScToInertial: %v", err)
	}

	dt := 3.7
	wantPos := geom.Vec3{X: 7.0e6, Y: 1000, Z: -2000}.
		Add(geom.Vec3{X: 10, Y: 7500, Z: -20}.Scale(dt)).
		Add(geom.Vec3{X: -8.0, Y: 0.1, Z: 0.05}.Scale(0.5 * dt * dt))
	if tr.Trans.Sub(wantPos).Norm() > 1e-6 {
		t.Errorf("position: got %+v, want %+v", tr.Trans, wantPos)
	}

	wantVel := geom.Vec3{X: 10, Y: 7500, Z: -20}.Add(geom.Vec3{X: -8.0, Y: 0.1, Z: 0.05}.Scale(dt))
	if tr.Vel.Sub(wantVel).Norm() > 1e-9 {
		t.Errorf("velocity: got %+v, want %+v", tr.Vel, wantVel)
	}
}

func TestScToInertialAtSampleNode(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pv := quadraticSamples(t0, 5, 10*time.Second)
	att := constantAttitude(t0, 5, 10*time.Second, geom.RotationZ(0.3))

	p, err := NewProvider(testPair(t), pv, 2, att, 2)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	tr, err := p.ScToInertial(pv[2].Date)
	if err != nil {
		t.Fatalf("ScToInertial: %v", err)
	}
	if tr.Trans.Sub(pv[2].Position).Norm() > 1e-9 {
		t.Errorf("position at node: got %+v, want %+v", tr.Trans, pv[2].Position)
	}

	v := geom.Vec3{X: 1, Y: 2, Z: 3}
	if tr.Rot.Apply(v).Sub(geom.RotationZ(0.3).Apply(v)).Norm() > 1e-12 {
		t.Errorf("attitude at node off")
	}
}

func TestOutOfTimeRange(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pv := quadraticSamples(t0, 5, time.Second)
	att := constantAttitude(t0, 5, time.Second, geom.Identity)

	p, err := NewProvider(testPair(t), pv, 2, att, 2)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	for _, query := range []time.Time{t0.Add(-time.Second), t0.Add(10 * time.Second)} {
		if _, err := p.ScToInertial(query); !ruggederr.IsKind(err, ruggederr.OutOfTimeRange) {
			t.Errorf("query %v: err = %v, want OutOfTimeRange", query, err)
		}
		if _, err := p.InertialToBody(query); !ruggederr.IsKind(err, ruggederr.OutOfTimeRange) {
			t.Errorf("InertialToBody %v: err = %v, want OutOfTimeRange", query, err)
		}
	}
}

func TestAttitudeSlerpMidpoint(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pv := quadraticSamples(t0, 2, 10*time.Second)
	att := []AttitudeSample{
		{Date: t0, Rotation: geom.RotationZ(0)},
		{Date: t0.Add(10 * time.Second), Rotation: geom.RotationZ(0.2)},
	}

	p, err := NewProvider(testPair(t), pv, 2, att, 2)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	tr, err := p.ScToInertial(t0.Add(5 * time.Second))
	if err != nil {
		t.Fatalf("ScToInertial: %v", err)
	}

	// Component blending of two nearby Z rotations lands on the half-angle
	// rotation to high accuracy.
	got := tr.Rot.Apply(geom.Vec3{X: 1})
	want := geom.RotationZ(0.1).Apply(geom.Vec3{X: 1})
	if got.Sub(want).Norm() > 1e-4 {
		t.Errorf("midpoint attitude: got %+v, want %+v", got, want)
	}
}

func TestInertialToBodyRotates(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pv := quadraticSamples(t0, 5, time.Second)
	att := constantAttitude(t0, 5, time.Second, geom.Identity)

	p, err := NewProvider(testPair(t), pv, 2, att, 2)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	tr, err := p.InertialToBody(t0.Add(2 * time.Second))
	if err != nil {
		t.Fatalf("InertialToBody: %v", err)
	}

	// The transform is the GMST rotation with the Earth rotation rate.
	gmst := frames.GMST(t0.Add(2 * time.Second))
	inertial := geom.Vec3{X: 7e6}
	want := geom.RotationZ(-gmst).Apply(inertial)
	if tr.TransformPosition(inertial).Sub(want).Norm() > 1e-6 {
		t.Errorf("body position: got %+v, want %+v", tr.TransformPosition(inertial), want)
	}
	if math.Abs(tr.RotRate.Z-frames.OmegaEarth) > 1e-12 {
		t.Errorf("rotation rate: got %v", tr.RotRate.Z)
	}
}

func TestProviderRejectsShortTables(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pv := quadraticSamples(t0, 1, time.Second)
	att := constantAttitude(t0, 5, time.Second, geom.Identity)

	if _, err := NewProvider(testPair(t), pv, 2, att, 2); err == nil {
		t.Fatal("expected error for a single-sample ephemeris")
	}
}
