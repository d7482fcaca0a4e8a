// Package stream serves long swath localizations as Server-Sent Events: one
// event per localized sensor line, so clients can render a ground footprint
// incrementally instead of waiting for the whole segment.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/sesteves/rugged-main/internal/geodesy"
)

// Engine is the slice of the localization engine the stream needs.
type Engine interface {
	DirectLocalization(sensorName string, line float64) ([]geodesy.NormalizedGeodeticPoint, error)
}

// Pool hands out engine instances; the engine itself is single-threaded.
type Pool interface {
	Acquire(ctx context.Context) (Engine, func(), error)
}

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int
	MaxLinesPerRequest int
}

// Handler streams per-line localization events.
type Handler struct {
	pool    Pool
	config  Config
	logger  *slog.Logger
	limiter *limiter
}

// NewHandler creates a streaming handler.
func NewHandler(pool Pool, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP < 1 {
		config.MaxConcurrentPerIP = 4
	}
	if config.MaxLinesPerRequest < 1 {
		config.MaxLinesPerRequest = 100000
	}
	return &Handler{
		pool:    pool,
		config:  config,
		logger:  logger,
		limiter: newLimiter(config.MaxConcurrentPerIP),
	}
}

type lineEvent struct {
	Line   float64    `json:"line"`
	Points []pointDTO `json:"points,omitempty"`
	Error  string     `json:"error,omitempty"`
}

type pointDTO struct {
	LatitudeDeg  float64 `json:"latitudeDeg"`
	LongitudeDeg float64 `json:"longitudeDeg"`
	AltitudeM    float64 `json:"altitudeM"`
}

// ServeHTTP implements the SSE endpoint: query parameters sensor, start,
// end and step select the lines to localize.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sensorName := r.URL.Query().Get("sensor")
	start, err1 := strconv.ParseFloat(r.URL.Query().Get("start"), 64)
	end, err2 := strconv.ParseFloat(r.URL.Query().Get("end"), 64)
	if sensorName == "" || err1 != nil || err2 != nil || end < start {
		http.Error(w, "sensor, start and end are required", http.StatusBadRequest)
		return
	}
	step := 1.0
	if v := r.URL.Query().Get("step"); v != "" {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil || s <= 0 {
			http.Error(w, "step must be a positive number", http.StatusBadRequest)
			return
		}
		step = s
	}
	if (end-start)/step > float64(h.config.MaxLinesPerRequest) {
		http.Error(w, "requested segment exceeds the line limit", http.StatusBadRequest)
		return
	}

	ip := clientIP(r)
	if !h.limiter.acquire(ip) {
		http.Error(w, "too many concurrent streams", http.StatusTooManyRequests)
		return
	}
	defer h.limiter.release(ip)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	engine, release, err := h.pool.Acquire(r.Context())
	if err != nil {
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	h.logger.Info("stream started",
		"component", "stream",
		"sensor", sensorName,
		"start", start,
		"end", end,
		"step", step,
		"remote_ip", ip,
	)

	lines := 0
	for line := start; line <= end+1e-9; line += step {
		select {
		case <-r.Context().Done():
			h.logger.Debug("stream client disconnected", "component", "stream", "remote_ip", ip)
			return
		default:
		}

		ev := lineEvent{Line: line}
		points, err := engine.DirectLocalization(sensorName, line)
		if err != nil {
			ev.Error = err.Error()
		} else {
			ev.Points = make([]pointDTO, len(points))
			for i, p := range points {
				ev.Points[i] = pointDTO{
					LatitudeDeg:  p.Latitude * 180 / math.Pi,
					LongitudeDeg: p.Longitude * 180 / math.Pi,
					AltitudeM:    p.Altitude,
				}
			}
		}

		payload, _ := json.Marshal(ev)
		fmt.Fprintf(w, "event: line\ndata: %s\n\n", payload)
		flusher.Flush()
		lines++
	}

	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()

	h.logger.Info("stream complete", "component", "stream", "lines", lines, "remote_ip", ip)
}

// clientIP extracts the peer address; the service is expected to sit behind
// a trusted proxy only when X-Forwarded-For is sanitized upstream.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// limiter tracks concurrent streams per peer.
type limiter struct {
	mu       sync.Mutex
	active   map[string]int
	maxPerIP int
}

func newLimiter(maxPerIP int) *limiter {
	return &limiter{active: make(map[string]int), maxPerIP: maxPerIP}
}

func (l *limiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[ip] >= l.maxPerIP {
		return false
	}
	l.active[ip]++
	return true
}

func (l *limiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active[ip]--
	if l.active[ip] <= 0 {
		delete(l.active, ip)
	}
}
