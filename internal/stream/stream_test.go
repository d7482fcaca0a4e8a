package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/sesteves/rugged-main/internal/geodesy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeEngine returns one fixed point per line.
type fakeEngine struct {
	calls int
}

func (f *fakeEngine) DirectLocalization(sensorName string, line float64) ([]geodesy.NormalizedGeodeticPoint, error) {
	if sensorName != "line" {
		return nil, errors.New("unknown sensor")
	}
	f.calls++
	return []geodesy.NormalizedGeodeticPoint{
		geodesy.NewNormalizedGeodeticPoint(line*1e-5, 0.1, 42, 0),
	}, nil
}

type fakePool struct {
	engine *fakeEngine
}

func (p *fakePool) Acquire(ctx context.Context) (Engine, func(), error) {
	return p.engine, func() {}, nil
}

func TestStreamEvents(t *testing.T) {
	engine := &fakeEngine{}
	h := NewHandler(&fakePool{engine: engine}, Config{MaxConcurrentPerIP: 2, MaxLinesPerRequest: 100}, testLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/localize/stream?sensor=line&start=0&end=4&step=1", nil))

	if rec.Code != 200 {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type: %q", got)
	}

	body := rec.Body.String()
	if got := strings.Count(body, "event: line"); got != 5 {
		t.Errorf("line events: got %d, want 5", got)
	}
	if !strings.Contains(body, "event: done") {
		t.Error("missing done event")
	}
	if engine.calls != 5 {
		t.Errorf("engine calls: got %d, want 5", engine.calls)
	}
	if !strings.Contains(body, `"altitudeM":42`) {
		t.Error("payload missing localized point")
	}
}

func TestStreamValidation(t *testing.T) {
	h := NewHandler(&fakePool{engine: &fakeEngine{}}, Config{MaxConcurrentPerIP: 2, MaxLinesPerRequest: 10}, testLogger())

	tests := []string{
		"/stream",                                   // no params
		"/stream?sensor=line&start=5&end=1",         // end < start
		"/stream?sensor=line&start=0&end=1000",      // too many lines
		"/stream?sensor=line&start=0&end=4&step=-1", // bad step
	}
	for _, url := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", url, nil))
		if rec.Code != 400 {
			t.Errorf("%s: status %d, want 400", url, rec.Code)
		}
	}
}

func TestStreamReportsPerLineErrors(t *testing.T) {
	h := NewHandler(&fakePool{engine: &fakeEngine{}}, Config{MaxConcurrentPerIP: 2, MaxLinesPerRequest: 100}, testLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/stream?sensor=other&start=0&end=0", nil))
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unknown sensor") {
		t.Error("per-line error not reported in the event stream")
	}
}

func TestLimiter(t *testing.T) {
	l := newLimiter(2)
	if !l.acquire("a") || !l.acquire("a") {
		t.Fatal("limiter refused under the cap")
	}
	if l.acquire("a") {
		t.Fatal("limiter allowed a third concurrent stream")
	}
	if !l.acquire("b") {
		t.Fatal("limiter mixed up peers")
	}
	l.release("a")
	if !l.acquire("a") {
		t.Fatal("limiter did not release")
	}
}
