// Package api exposes the localization engine over HTTP: direct and inverse
// localization endpoints, a per-line SSE stream, scenario metadata, health
// probes and Prometheus metrics.
package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sesteves/rugged-main/internal/auth"
	"github.com/sesteves/rugged-main/internal/geodesy"
	"github.com/sesteves/rugged-main/internal/metrics"
	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
	"github.com/sesteves/rugged-main/internal/scenario"
	"github.com/sesteves/rugged-main/internal/stream"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	pool       *Pool
	built      *scenario.Built
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server over an engine pool.
func NewServer(addr string, pool *Pool, built *scenario.Built, streamCfg stream.Config, authCfg auth.Config, logger *slog.Logger) *Server {
	s := &Server{
		pool:   pool,
		built:  built,
		logger: logger,
	}

	streamHandler := stream.NewHandler(streamPool{pool: pool}, streamCfg, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/scenario", s.handleScenario)
	mux.HandleFunc("POST /api/v1/localize/direct", s.handleDirect)
	mux.HandleFunc("POST /api/v1/localize/inverse", s.handleInverse)
	mux.Handle("GET /api/v1/localize/stream", streamHandler)

	// Middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the full middleware-wrapped handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if s.pool == nil || s.pool.Size() == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("no engines\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}

type scenarioResponse struct {
	Name                        string    `json:"name"`
	Sensors                     []string  `json:"sensors"`
	MinDate                     time.Time `json:"minDate"`
	MaxDate                     time.Time `json:"maxDate"`
	LightTimeCorrection         bool      `json:"lightTimeCorrection"`
	AberrationOfLightCorrection bool      `json:"aberrationOfLightCorrection"`
	Engines                     int       `json:"engines"`
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	engine, release, err := s.pool.Acquire(r.Context())
	if err != nil {
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	defer release()

	resp := scenarioResponse{
		Name:                        s.built.Name,
		MinDate:                     engine.MinDate(),
		MaxDate:                     engine.MaxDate(),
		LightTimeCorrection:         engine.IsLightTimeCorrected(),
		AberrationOfLightCorrection: engine.IsAberrationOfLightCorrected(),
		Engines:                     s.pool.Size(),
	}
	for _, sn := range s.built.Sensors {
		resp.Sensors = append(resp.Sensors, sn.Name())
	}
	writeJSON(w, http.StatusOK, resp)
}

type pointDTO struct {
	LatitudeDeg  float64 `json:"latitudeDeg"`
	LongitudeDeg float64 `json:"longitudeDeg"`
	AltitudeM    float64 `json:"altitudeM"`
}

type directRequest struct {
	Sensor string  `json:"sensor"`
	Line   float64 `json:"line"`
	Start  *int    `json:"start,omitempty"`
	End    *int    `json:"end,omitempty"`
}

type directResponse struct {
	Sensor string     `json:"sensor"`
	Line   float64    `json:"line"`
	Points []pointDTO `json:"points"`
}

func (s *Server) handleDirect(w http.ResponseWriter, r *http.Request) {
	var req directRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	engine, release, err := s.pool.Acquire(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	defer release()

	var points []geodesy.NormalizedGeodeticPoint
	if req.Start != nil || req.End != nil {
		sensor, err := engine.Sensor(req.Sensor)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		start, end := 0, sensor.NbPixels()
		if req.Start != nil {
			start = *req.Start
		}
		if req.End != nil {
			end = *req.End
		}
		points, err = engine.DirectLocalizationPixels(req.Sensor, req.Line, start, end)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
	} else {
		points, err = engine.DirectLocalization(req.Sensor, req.Line)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
	}

	resp := directResponse{Sensor: req.Sensor, Line: req.Line, Points: make([]pointDTO, len(points))}
	for i, p := range points {
		resp.Points[i] = pointDTO{
			LatitudeDeg:  p.Latitude * 180 / math.Pi,
			LongitudeDeg: p.Longitude * 180 / math.Pi,
			AltitudeM:    p.Altitude,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type inverseRequest struct {
	Sensor  string   `json:"sensor"`
	Point   pointDTO `json:"point"`
	MinLine float64  `json:"minLine"`
	MaxLine float64  `json:"maxLine"`
}

type inverseResponse struct {
	Found bool    `json:"found"`
	Line  float64 `json:"line,omitempty"`
	Pixel float64 `json:"pixel,omitempty"`
}

func (s *Server) handleInverse(w http.ResponseWriter, r *http.Request) {
	var req inverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	engine, release, err := s.pool.Acquire(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	defer release()

	ground := geodesy.GeodeticPoint{
		Latitude:  req.Point.LatitudeDeg * math.Pi / 180,
		Longitude: req.Point.LongitudeDeg * math.Pi / 180,
		Altitude:  req.Point.AltitudeM,
	}

	pixel, err := engine.InverseLocalization(req.Sensor, ground, req.MinLine, req.MaxLine)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if pixel == nil {
		writeJSON(w, http.StatusOK, inverseResponse{Found: false})
		return
	}
	writeJSON(w, http.StatusOK, inverseResponse{Found: true, Line: pixel.Line, Pixel: pixel.Pixel})
}

// writeEngineError maps engine error kinds onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case ruggederr.IsKind(err, ruggederr.UnknownSensor):
		status = http.StatusNotFound
	case ruggederr.IsKind(err, ruggederr.OutOfTimeRange),
		ruggederr.IsKind(err, ruggederr.LineOfSightDoesNotReachGround),
		ruggederr.IsKind(err, ruggederr.DemEntryPointIsBehindSpacecraft),
		ruggederr.IsKind(err, ruggederr.GroundPointOutOfColumnRange):
		status = http.StatusUnprocessableEntity
	}
	s.logger.Warn("localization failed", "component", "api", "error", err, "status", status)
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushes so SSE streaming keeps working through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
