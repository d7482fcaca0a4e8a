package sensor

import (
	"math"
	"testing"
	"time"

	"github.com/sesteves/rugged-main/internal/geom"
)

// fanLOS builds an across-track fan in the Y-Z plane around the +Z boresight.
func fanLOS(pixels int, fov float64) []geom.Vec3 {
	los := make([]geom.Vec3, pixels)
	for i := range los {
		angle := (float64(i)/float64(pixels-1) - 0.5) * fov
		los[i] = geom.Vec3{Y: math.Sin(angle), Z: math.Cos(angle)}
	}
	return los
}

func testSensor() *LineSensor {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return New("test-line", geom.Vec3{}, fanLOS(101, 4*math.Pi/180), NewLinearDatation(t0, 0, 10))
}

func TestLinearDatation(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	d := NewLinearDatation(t0, 100, 10)

	if got := d.Date(100); !got.Equal(t0) {
		t.Errorf("Date(100): got %v, want %v", got, t0)
	}
	if got := d.Date(110); !got.Equal(t0.Add(time.Second)) {
		t.Errorf("Date(110): got %v, want %v", got, t0.Add(time.Second))
	}
	if got := d.Line(t0.Add(-2 * time.Second)); math.Abs(got-80) > 1e-9 {
		t.Errorf("Line(t0-2s): got %v, want 80", got)
	}

	// Round trip.
	for _, line := range []float64{0, 42.5, 123.25} {
		if got := d.Line(d.Date(line)); math.Abs(got-line) > 1e-6 {
			t.Errorf("round trip line %v: got %v", line, got)
		}
	}
}

func TestMeanPlaneNormal(t *testing.T) {
	s := testSensor()

	// The fan spans the Y-Z plane: the mean plane normal must be ±X.
	n := s.MeanPlaneNormal()
	if math.Abs(math.Abs(n.X)-1) > 1e-9 || math.Abs(n.Y) > 1e-9 || math.Abs(n.Z) > 1e-9 {
		t.Errorf("mean plane normal: got %+v, want ±X", n)
	}
	if math.Abs(n.Norm()-1) > 1e-12 {
		t.Errorf("mean plane normal not unit: %v", n.Norm())
	}

	// Every LOS is orthogonal to it.
	for i := 0; i < s.NbPixels(); i++ {
		if dot := math.Abs(n.Dot(s.LOS(i))); dot > 1e-9 {
			t.Errorf("pixel %d: |n·los| = %v", i, dot)
		}
	}
}

func TestMeanPlaneNormalSkewedSensor(t *testing.T) {
	// Rotate the whole fan: the normal must follow.
	r := geom.AxisAngle(geom.Vec3{X: 1, Y: 2, Z: 0.5}, 0.8)
	los := fanLOS(51, 2*math.Pi/180)
	for i := range los {
		los[i] = r.Apply(los[i])
	}
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := New("skewed", geom.Vec3{}, los, NewLinearDatation(t0, 0, 10))

	want := r.Apply(geom.Vec3{X: 1})
	n := s.MeanPlaneNormal()
	if math.Abs(math.Abs(n.Dot(want))-1) > 1e-9 {
		t.Errorf("skewed normal: got %+v, want ±%+v", n, want)
	}
}

func TestInterpolatedLOS(t *testing.T) {
	s := testSensor()

	// Integer indices reproduce the raw LOS.
	for _, i := range []int{0, 50, 100} {
		if s.InterpolatedLOS(float64(i)).Sub(s.LOS(i)).Norm() > 1e-12 {
			t.Errorf("InterpolatedLOS(%d) differs from LOS", i)
		}
	}

	// A fractional index lies between its neighbors and stays unit length.
	mid := s.InterpolatedLOS(50.5)
	if math.Abs(mid.Norm()-1) > 1e-12 {
		t.Errorf("interpolated LOS not unit: %v", mid.Norm())
	}
	a0 := geom.Angle(s.LOS(50), mid)
	a1 := geom.Angle(mid, s.LOS(51))
	if math.Abs(a0-a1) > 1e-9 {
		t.Errorf("midpoint not centered: %v vs %v", a0, a1)
	}

	// Out-of-range indices clamp to the end segments.
	if s.InterpolatedLOS(-5).Sub(s.InterpolatedLOS(-1)).Norm() > 1 {
		t.Errorf("clamping below range broken")
	}
}

func TestExplicitMeanPlane(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	normal := geom.Vec3{X: 3}
	s := NewWithMeanPlane("explicit", geom.Vec3{}, fanLOS(11, 0.01), NewLinearDatation(t0, 0, 1), normal)
	if s.MeanPlaneNormal().Sub(geom.Vec3{X: 1}).Norm() > 1e-12 {
		t.Errorf("explicit normal not normalized: %+v", s.MeanPlaneNormal())
	}
}

func TestSensorAccessors(t *testing.T) {
	s := testSensor()
	if s.Name() != "test-line" {
		t.Errorf("Name: got %q", s.Name())
	}
	if s.NbPixels() != 101 {
		t.Errorf("NbPixels: got %d", s.NbPixels())
	}
	if !s.Date(0).Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date(0): got %v", s.Date(0))
	}
}
