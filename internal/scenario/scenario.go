// Package scenario loads localization scenarios: a JSON document describing
// the ellipsoid and frames, the spacecraft ephemeris and attitude, the line
// sensors and a synthetic DEM. A parsed scenario builds directly into an
// engine configuration plus the sensors to register on it.
package scenario

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/sesteves/rugged-main/internal/ephem"
	"github.com/sesteves/rugged-main/internal/frames"
	"github.com/sesteves/rugged-main/internal/geodesy"
	"github.com/sesteves/rugged-main/internal/geom"
	"github.com/sesteves/rugged-main/internal/intersect"
	"github.com/sesteves/rugged-main/internal/rugged"
	"github.com/sesteves/rugged-main/internal/sensor"
)

// Document is the on-disk scenario schema. Angles are degrees and altitudes
// meters; the builders convert to the engine's radians.
type Document struct {
	Name string `json:"name"`

	Ellipsoid      string `json:"ellipsoid"`
	InertialFrame  string `json:"inertialFrame"`
	BodyFrame      string `json:"bodyRotatingFrame"`
	Algorithm      string `json:"algorithm"`
	MaxCachedTiles int    `json:"maxCachedTiles"`

	PVInterpolationOrder int `json:"pvInterpolationOrder"`
	AInterpolationOrder  int `json:"aInterpolationOrder"`

	LightTimeCorrection         *bool `json:"lightTimeCorrection"`
	AberrationOfLightCorrection *bool `json:"aberrationOfLightCorrection"`

	Ephemeris EphemerisDef `json:"ephemeris"`
	Attitude  AttitudeDef  `json:"attitude"`
	Sensors   []SensorDef  `json:"sensors"`
	DEM       DEMDef       `json:"dem"`
}

// EphemerisDef supplies position/velocity either as explicit samples or as a
// TLE to propagate into samples.
type EphemerisDef struct {
	TLE     *TLEDef       `json:"tle,omitempty"`
	Samples []PVSampleDef `json:"samples,omitempty"`
}

// TLEDef is a two-line element set plus the sampling window to propagate.
type TLEDef struct {
	Line1       string    `json:"line1"`
	Line2       string    `json:"line2"`
	Start       time.Time `json:"start"`
	StepSeconds float64   `json:"stepSeconds"`
	Count       int       `json:"count"`
}

// PVSampleDef is one explicit ephemeris sample (inertial frame, m and m/s).
type PVSampleDef struct {
	Date     time.Time  `json:"date"`
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity"`
}

// AttitudeDef supplies attitude either as explicit quaternion samples or as
// generated nadir pointing derived from the ephemeris.
type AttitudeDef struct {
	NadirPointing bool            `json:"nadirPointing"`
	Samples       []QuaternionDef `json:"samples,omitempty"`
}

// QuaternionDef is one attitude sample, spacecraft→inertial, (w, x, y, z).
type QuaternionDef struct {
	Date time.Time  `json:"date"`
	Q    [4]float64 `json:"q"`
}

// SensorDef describes one line sensor. Lines of sight may be listed
// explicitly or generated as an evenly spaced fan of fovDeg across track
// around the +Z boresight.
type SensorDef struct {
	Name     string       `json:"name"`
	Pixels   int          `json:"pixels"`
	FOVDeg   float64      `json:"fovDeg"`
	Position [3]float64   `json:"position"`
	LOS      [][3]float64 `json:"los,omitempty"`

	FirstLineDate time.Time `json:"firstLineDate"`
	RefLine       float64   `json:"refLine"`
	LineRateHz    float64   `json:"lineRateHz"`
}

// DEMDef describes the synthetic elevation model backing the tile updater.
type DEMDef struct {
	Kind string `json:"kind"` // "constant" or "cone"

	Elevation     float64 `json:"elevation"`     // constant value / cone base
	PeakElevation float64 `json:"peakElevation"` // cone peak
	OriginLatDeg  float64 `json:"originLatDeg"`  // cone center
	OriginLonDeg  float64 `json:"originLonDeg"`
	RadiusDeg     float64 `json:"radiusDeg"` // cone footprint radius

	TileSizeDeg    float64 `json:"tileSizeDeg"`
	SamplesPerTile int     `json:"samplesPerTile"`

	// HeightsAboveMSL marks the elevations as mean-sea-level heights; the
	// updater then raises them onto the ellipsoid with the EGM96 geoid
	// undulation.
	HeightsAboveMSL bool `json:"heightsAboveMSL"`
}

// Built is a scenario resolved into engine inputs.
type Built struct {
	Name    string
	Config  rugged.Config
	Sensors []*sensor.LineSensor

	LightTimeCorrection         bool
	AberrationOfLightCorrection bool
}

// Load reads and builds a scenario file.
func Load(path string, logger *slog.Logger) (*Built, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data, logger)
}

// Parse builds a scenario from its JSON serialization.
func Parse(data []byte, logger *slog.Logger) (*Built, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return doc.Build(logger)
}

// Build resolves the document into engine inputs.
func (doc *Document) Build(logger *slog.Logger) (*Built, error) {
	ellipsoidID, err := parseEllipsoid(doc.Ellipsoid)
	if err != nil {
		return nil, err
	}
	inertialID, err := parseInertialFrame(doc.InertialFrame)
	if err != nil {
		return nil, err
	}
	bodyID, err := parseBodyFrame(doc.BodyFrame)
	if err != nil {
		return nil, err
	}
	algorithmID, err := parseAlgorithm(doc.Algorithm)
	if err != nil {
		return nil, err
	}

	pv, err := doc.Ephemeris.build()
	if err != nil {
		return nil, err
	}
	att, err := doc.Attitude.build(pv)
	if err != nil {
		return nil, err
	}

	sensors := make([]*sensor.LineSensor, 0, len(doc.Sensors))
	for i := range doc.Sensors {
		s, err := doc.Sensors[i].build()
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, s)
	}
	if len(sensors) == 0 {
		return nil, fmt.Errorf("scenario declares no sensors")
	}

	updater, err := doc.DEM.updater()
	if err != nil {
		return nil, err
	}

	maxTiles := doc.MaxCachedTiles
	if maxTiles <= 0 {
		maxTiles = 8
	}
	pvOrder := doc.PVInterpolationOrder
	if pvOrder < 2 {
		pvOrder = 4
	}
	aOrder := doc.AInterpolationOrder
	if aOrder < 2 {
		aOrder = 2
	}

	built := &Built{
		Name: doc.Name,
		Config: rugged.Config{
			Updater:              updater,
			MaxCachedTiles:       maxTiles,
			Algorithm:            algorithmID,
			Ellipsoid:            ellipsoidID,
			InertialFrame:        inertialID,
			BodyFrame:            bodyID,
			PositionsVelocities:  pv,
			PVInterpolationOrder: pvOrder,
			Quaternions:          att,
			AInterpolationOrder:  aOrder,
			Logger:               logger,
		},
		Sensors:                     sensors,
		LightTimeCorrection:         boolOr(doc.LightTimeCorrection, true),
		AberrationOfLightCorrection: boolOr(doc.AberrationOfLightCorrection, true),
	}
	return built, nil
}

// NewEngine instantiates a configured engine with the scenario's sensors
// registered and correction flags applied.
func (b *Built) NewEngine() (*rugged.Rugged, error) {
	r, err := rugged.New(b.Config)
	if err != nil {
		return nil, err
	}
	for _, s := range b.Sensors {
		r.SetLineSensor(s)
	}
	r.SetLightTimeCorrection(b.LightTimeCorrection)
	r.SetAberrationOfLightCorrection(b.AberrationOfLightCorrection)
	return r, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func parseEllipsoid(s string) (geodesy.EllipsoidID, error) {
	switch s {
	case "GRS80":
		return geodesy.GRS80, nil
	case "", "WGS84":
		return geodesy.WGS84, nil
	case "IERS96":
		return geodesy.IERS96, nil
	case "IERS2003":
		return geodesy.IERS2003, nil
	}
	return 0, fmt.Errorf("unknown ellipsoid %q", s)
}

func parseInertialFrame(s string) (frames.InertialFrameID, error) {
	switch s {
	case "GCRF":
		return frames.GCRF, nil
	case "", "EME2000":
		return frames.EME2000, nil
	case "MOD":
		return frames.MOD, nil
	case "TOD":
		return frames.TOD, nil
	case "VEIS1950":
		return frames.VEIS1950, nil
	}
	return 0, fmt.Errorf("unknown inertial frame %q", s)
}

func parseBodyFrame(s string) (frames.BodyRotatingFrameID, error) {
	switch s {
	case "", "ITRF":
		return frames.ITRF, nil
	case "ITRF_EQUINOX":
		return frames.ITRFEquinox, nil
	case "GTOD":
		return frames.GTOD, nil
	}
	return 0, fmt.Errorf("unknown body rotating frame %q", s)
}

func parseAlgorithm(s string) (intersect.AlgorithmID, error) {
	switch s {
	case "", "DUVENHAGE":
		return intersect.Duvenhage, nil
	case "DUVENHAGE_FLAT_BODY":
		return intersect.DuvenhageFlatBody, nil
	case "BASIC_SLOW_EXHAUSTIVE_SCAN_FOR_TESTS_ONLY":
		return intersect.BasicScanForTestsOnly, nil
	case "IGNORE_DEM_USE_ELLIPSOID":
		return intersect.IgnoreDEMUseEllipsoid, nil
	}
	return 0, fmt.Errorf("unknown algorithm %q", s)
}

func (e *EphemerisDef) build() ([]ephem.PVSample, error) {
	if e.TLE != nil {
		step := time.Duration(e.TLE.StepSeconds * float64(time.Second))
		return ephem.SamplesFromTLE(e.TLE.Line1, e.TLE.Line2, e.TLE.Start, step, e.TLE.Count)
	}
	if len(e.Samples) < 2 {
		return nil, fmt.Errorf("ephemeris needs a TLE or at least 2 samples")
	}
	samples := make([]ephem.PVSample, len(e.Samples))
	for i, s := range e.Samples {
		samples[i] = ephem.PVSample{
			Date:     s.Date,
			Position: geom.Vec3{X: s.Position[0], Y: s.Position[1], Z: s.Position[2]},
			Velocity: geom.Vec3{X: s.Velocity[0], Y: s.Velocity[1], Z: s.Velocity[2]},
		}
	}
	return samples, nil
}

func (a *AttitudeDef) build(pv []ephem.PVSample) ([]ephem.AttitudeSample, error) {
	if len(a.Samples) > 0 {
		samples := make([]ephem.AttitudeSample, len(a.Samples))
		for i, q := range a.Samples {
			samples[i] = ephem.AttitudeSample{
				Date:     q.Date,
				Rotation: geom.NewRotation(q.Q[0], q.Q[1], q.Q[2], q.Q[3]),
			}
		}
		return samples, nil
	}
	if !a.NadirPointing {
		return nil, fmt.Errorf("attitude needs samples or nadirPointing")
	}
	return NadirAttitude(pv), nil
}

// NadirAttitude derives nadir-pointing attitude samples from ephemeris
// samples: the spacecraft +Z axis looks at the center of the body and +X
// follows the along-track direction.
func NadirAttitude(pv []ephem.PVSample) []ephem.AttitudeSample {
	samples := make([]ephem.AttitudeSample, len(pv))
	for i, s := range pv {
		z := s.Position.Scale(-1).Normalized()
		x := s.Velocity.Sub(z.Scale(s.Velocity.Dot(z))).Normalized()
		y := z.Cross(x)
		samples[i] = ephem.AttitudeSample{
			Date:     s.Date,
			Rotation: geom.RotationFromBasis(x, y, z),
		}
	}
	return samples
}

func (s *SensorDef) build() (*sensor.LineSensor, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("sensor needs a name")
	}
	if s.LineRateHz <= 0 {
		return nil, fmt.Errorf("sensor %s: lineRateHz must be positive", s.Name)
	}

	var los []geom.Vec3
	switch {
	case len(s.LOS) >= 2:
		los = make([]geom.Vec3, len(s.LOS))
		for i, l := range s.LOS {
			los[i] = geom.Vec3{X: l[0], Y: l[1], Z: l[2]}.Normalized()
		}
	case s.Pixels >= 2 && s.FOVDeg > 0:
		los = FanLOS(s.Pixels, s.FOVDeg*math.Pi/180)
	default:
		return nil, fmt.Errorf("sensor %s: needs explicit los or pixels+fovDeg", s.Name)
	}

	datation := sensor.NewLinearDatation(s.FirstLineDate, s.RefLine, s.LineRateHz)
	position := geom.Vec3{X: s.Position[0], Y: s.Position[1], Z: s.Position[2]}
	return sensor.New(s.Name, position, los, datation), nil
}

// FanLOS generates an evenly spaced across-track fan of lines of sight: the
// boresight is +Z and the fan opens along +Y over the given total field of
// view (radians).
func FanLOS(pixels int, fov float64) []geom.Vec3 {
	los := make([]geom.Vec3, pixels)
	for i := range los {
		angle := (float64(i)/float64(pixels-1) - 0.5) * fov
		los[i] = geom.Vec3{Y: math.Sin(angle), Z: math.Cos(angle)}
	}
	return los
}
