package ephem

import (
	"testing"
	"time"
)

// Reference ISS elements.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func TestSamplesFromTLE(t *testing.T) {
	start := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	samples, err := SamplesFromTLE(issLine1, issLine2, start, time.Second, 30)
	if err != nil {
		t.Fatalf("SamplesFromTLE: %v", err)
	}
	if len(samples) != 30 {
		t.Fatalf("samples: got %d, want 30", len(samples))
	}

	for i, s := range samples {
		r := s.Position.Norm()
		if r < 6.5e6 || r > 7.2e6 {
			t.Errorf("sample %d: position magnitude %v outside LEO range", i, r)
		}
		v := s.Velocity.Norm()
		if v < 7000 || v > 8100 {
			t.Errorf("sample %d: velocity magnitude %v outside LEO range", i, v)
		}
		if i > 0 && !s.Date.After(samples[i-1].Date) {
			t.Errorf("sample %d: dates not increasing", i)
		}
	}

	// Velocity should match finite differences of positions.
	dp := samples[1].Position.Sub(samples[0].Position)
	if dp.Sub(samples[0].Velocity).Norm() > 50 {
		t.Errorf("velocity inconsistent with position delta: |Δp - v| = %v", dp.Sub(samples[0].Velocity).Norm())
	}
}

func TestSamplesFromTLEValidation(t *testing.T) {
	start := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

	if _, err := SamplesFromTLE("garbage", issLine2, start, time.Second, 10); err == nil {
		t.Error("expected error for malformed line1")
	}
	if _, err := SamplesFromTLE(issLine1, issLine2, start, time.Second, 1); err == nil {
		t.Error("expected error for a single-sample request")
	}
	if _, err := SamplesFromTLE(issLine1, issLine2, start, 0, 10); err == nil {
		t.Error("expected error for zero step")
	}
}
