// Package rugged is the localization engine facade: it owns the ellipsoid,
// the spacecraft-to-body transform provider, the registered line sensors and
// the DEM intersection algorithm, and exposes direct and inverse geodetic
// localization with light-time and aberration-of-light corrections.
//
// An engine instance is single-threaded by contract: concurrent deployments
// create one instance (and therefore one tile cache) per worker.
package rugged

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/sesteves/rugged-main/internal/dem"
	"github.com/sesteves/rugged-main/internal/ephem"
	"github.com/sesteves/rugged-main/internal/frames"
	"github.com/sesteves/rugged-main/internal/geodesy"
	"github.com/sesteves/rugged-main/internal/geom"
	"github.com/sesteves/rugged-main/internal/intersect"
	"github.com/sesteves/rugged-main/internal/metrics"
	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
	"github.com/sesteves/rugged-main/internal/sensor"
)

// SpeedOfLight in m/s.
const SpeedOfLight = 299792458.0

// coarseInverseAccuracy is the absolute accuracy of the first stage of
// inverse localization. It only needs to locate the crossing within one
// line/pixel so the surrounding corners can be estimated; anything finer is
// wasted work.
const coarseInverseAccuracy = 0.01

// maxEval bounds the solver evaluations of one inverse localization.
const maxEval = 1000

// SensorPixel is a fractional (line, pixel) position on a sensor.
type SensorPixel struct {
	Line  float64
	Pixel float64
}

// Config assembles everything an engine instance needs.
type Config struct {
	Updater        dem.Updater
	MaxCachedTiles int
	Algorithm      intersect.AlgorithmID

	Ellipsoid     geodesy.EllipsoidID
	InertialFrame frames.InertialFrameID
	BodyFrame     frames.BodyRotatingFrameID

	PositionsVelocities  []ephem.PVSample
	PVInterpolationOrder int
	Quaternions          []ephem.AttitudeSample
	AInterpolationOrder  int

	Logger *slog.Logger
}

// Rugged is a configured localization engine.
type Rugged struct {
	ellipsoid geodesy.Ellipsoid
	provider  *ephem.Provider
	sensors   map[string]*sensor.LineSensor
	algorithm intersect.Algorithm
	logger    *slog.Logger

	lightTimeCorrection         bool
	aberrationOfLightCorrection bool
}

// New builds an engine. Both corrections start enabled; disable them with
// the setters when validating against systems that do not compensate, or
// when the sensor calibration already includes them.
func New(cfg Config) (*Rugged, error) {
	if cfg.Updater == nil && cfg.Algorithm != intersect.IgnoreDEMUseEllipsoid {
		return nil, ruggederr.New(ruggederr.UninitializedContext)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ellipsoid, err := geodesy.SelectEllipsoid(cfg.Ellipsoid)
	if err != nil {
		return nil, err
	}

	pair, err := frames.NewPair(cfg.InertialFrame, cfg.BodyFrame)
	if err != nil {
		return nil, err
	}

	provider, err := ephem.NewProvider(pair, cfg.PositionsVelocities, cfg.PVInterpolationOrder,
		cfg.Quaternions, cfg.AInterpolationOrder)
	if err != nil {
		return nil, err
	}

	algorithm, err := intersect.Select(cfg.Algorithm, cfg.Updater, cfg.MaxCachedTiles, logger)
	if err != nil {
		return nil, err
	}

	return &Rugged{
		ellipsoid:                   ellipsoid,
		provider:                    provider,
		sensors:                     make(map[string]*sensor.LineSensor),
		algorithm:                   algorithm,
		logger:                      logger,
		lightTimeCorrection:         true,
		aberrationOfLightCorrection: true,
	}, nil
}

// SetLightTimeCorrection toggles compensation of the light travel time
// between ground and spacecraft.
func (r *Rugged) SetLightTimeCorrection(enabled bool) {
	r.lightTimeCorrection = enabled
}

// IsLightTimeCorrected reports whether light time is compensated.
func (r *Rugged) IsLightTimeCorrected() bool {
	return r.lightTimeCorrection
}

// SetAberrationOfLightCorrection toggles compensation of the velocity
// composition between light and spacecraft.
func (r *Rugged) SetAberrationOfLightCorrection(enabled bool) {
	r.aberrationOfLightCorrection = enabled
}

// IsAberrationOfLightCorrected reports whether aberration of light is
// compensated.
func (r *Rugged) IsAberrationOfLightCorrected() bool {
	return r.aberrationOfLightCorrection
}

// SetLineSensor registers (or replaces) a line sensor.
func (r *Rugged) SetLineSensor(s *sensor.LineSensor) {
	r.sensors[s.Name()] = s
}

// Sensor returns a registered sensor.
func (r *Rugged) Sensor(name string) (*sensor.LineSensor, error) {
	s, ok := r.sensors[name]
	if !ok {
		return nil, ruggederr.New(ruggederr.UnknownSensor, name)
	}
	return s, nil
}

// MinDate returns the earliest date the ephemeris covers.
func (r *Rugged) MinDate() time.Time { return r.provider.MinDate() }

// MaxDate returns the latest date the ephemeris covers.
func (r *Rugged) MaxDate() time.Time { return r.provider.MaxDate() }

// DirectLocalization localizes every pixel of a sensor line on the ground,
// in pixel order.
func (r *Rugged) DirectLocalization(sensorName string, line float64) ([]geodesy.NormalizedGeodeticPoint, error) {
	s, err := r.Sensor(sensorName)
	if err != nil {
		return nil, err
	}
	return r.DirectLocalizationPixels(sensorName, line, 0, s.NbPixels())
}

// DirectLocalizationPixels localizes the pixels [start, end) of a sensor
// line.
func (r *Rugged) DirectLocalizationPixels(sensorName string, line float64, start, end int) ([]geodesy.NormalizedGeodeticPoint, error) {
	s, err := r.Sensor(sensorName)
	if err != nil {
		return nil, err
	}
	if start < 0 || end > s.NbPixels() || start >= end {
		return nil, ruggederr.New(ruggederr.GroundPointOutOfColumnRange, 0, s.NbPixels()-1, float64(start))
	}

	begin := time.Now()
	gp, err := r.directLocalize(s, start, end, r.algorithm, line)
	metrics.RecordLocalization("direct", time.Since(begin))
	return gp, err
}

// directLocalize runs the per-pixel pipeline: transforms at the line date,
// aberration of light, light-time correction, then the intersection
// algorithm. Geometric failures surface: the caller asked for these pixels.
func (r *Rugged) directLocalize(s *sensor.LineSensor, start, end int, alg intersect.Algorithm, line float64) ([]geodesy.NormalizedGeodeticPoint, error) {
	date := s.Date(line)
	scToInert, err := r.provider.ScToInertial(date)
	if err != nil {
		return nil, err
	}
	inertToBody, err := r.provider.InertialToBody(date)
	if err != nil {
		return nil, err
	}
	// Approximate spacecraft→body transform, used to seed the light-time
	// iteration.
	approximate := scToInert.Compose(inertToBody)

	spacecraftVelocity := scToInert.Vel
	pInert := scToInert.TransformPosition(s.Position())

	gp := make([]geodesy.NormalizedGeodeticPoint, end-start)
	for i := start; i < end; i++ {
		rawLInert := scToInert.TransformVector(s.LOS(i))
		lInert := rawLInert
		if r.aberrationOfLightCorrection {
			// The spacecraft velocity is small with respect to the speed of
			// light, so classical velocity addition is enough.
			lInert = geom.LinComb(SpeedOfLight, rawLInert, 1.0, spacecraftVelocity).Normalized()
		}

		if r.lightTimeCorrection {
			// Two fixed-point passes on the downlink delay: coarse ellipsoid
			// hit, full DEM intersection, then refinement at the improved
			// delay. Two passes suffice for low-orbit geometry.
			sP := approximate.TransformPosition(s.Position())
			sL := approximate.TransformVector(s.LOS(i))

			coarse, err := r.ellipsoid.PointOnGround(sP, sL, 0, r.ellipsoid.Geodetic(sP).Longitude)
			if err != nil {
				return nil, err
			}
			eP1 := r.ellipsoid.Cartesian(coarse.GeodeticPoint)
			deltaT1 := eP1.DistanceTo(sP) / SpeedOfLight
			shifted1 := inertToBody.ShiftedBy(-deltaT1)
			gp1, err := alg.Intersection(r.ellipsoid,
				shifted1.TransformPosition(pInert),
				shifted1.TransformVector(lInert))
			if err != nil {
				return nil, err
			}

			eP2 := r.ellipsoid.Cartesian(gp1.GeodeticPoint)
			deltaT2 := eP2.DistanceTo(sP) / SpeedOfLight
			shifted2 := inertToBody.ShiftedBy(-deltaT2)
			gp[i-start], err = alg.RefineIntersection(r.ellipsoid,
				shifted2.TransformPosition(pInert),
				shifted2.TransformVector(lInert),
				gp1)
			if err != nil {
				return nil, err
			}
		} else {
			pBody := inertToBody.TransformPosition(pInert)
			lBody := inertToBody.TransformVector(lInert)
			first, err := alg.Intersection(r.ellipsoid, pBody, lBody)
			if err != nil {
				return nil, err
			}
			gp[i-start], err = alg.RefineIntersection(r.ellipsoid, pBody, lBody, first)
			if err != nil {
				return nil, err
			}
		}
	}

	return gp, nil
}

// InverseLocalization finds the sensor pixel observing a ground point within
// the prescribed line range. Returns nil (and no error) when the ground
// point is not seen in the range.
func (r *Rugged) InverseLocalization(sensorName string, ground geodesy.GeodeticPoint, minLine, maxLine float64) (*SensorPixel, error) {
	s, err := r.Sensor(sensorName)
	if err != nil {
		return nil, err
	}

	begin := time.Now()
	defer func() { metrics.RecordLocalization("inverse", time.Since(begin)) }()

	target := r.ellipsoid.Cartesian(ground)

	// Stage 1: the line at which the target crosses the sensor mean plane.
	planeCrossing := func(line float64) (float64, error) {
		dir, err := r.targetDirection(s, target, line)
		if err != nil {
			return 0, err
		}
		return geom.Angle(dir, s.MeanPlaneNormal()) - 0.5*math.Pi, nil
	}
	coarseLine, err := solveBracketing(planeCrossing, minLine, maxLine, coarseInverseAccuracy, maxEval)
	if errors.Is(err, errNoBracket) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Stage 2: the pixel along that line.
	targetDir, err := r.targetDirection(s, target, coarseLine)
	if err != nil {
		return nil, err
	}
	cross := s.MeanPlaneNormal().Cross(targetDir).Normalized()
	pixelCrossing := func(x float64) (float64, error) {
		return geom.Angle(cross, s.InterpolatedLOS(x)) - 0.5*math.Pi, nil
	}
	coarsePixel, err := solveBracketing(pixelCrossing, -1.0, float64(s.NbPixels()), coarseInverseAccuracy, maxEval)
	if errors.Is(err, errNoBracket) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Stage 3: bilinear refinement over the surrounding quadrilateral,
	// localized on the shell at the ground point's altitude.
	lInf := math.Floor(coarseLine)
	pInf := int(math.Floor(coarsePixel))
	if pInf < 0 {
		pInf = 0
	}
	if pInf > s.NbPixels()-2 {
		pInf = s.NbPixels() - 2
	}

	alg := intersect.NewFixedAltitude(ground.Altitude)
	previous, err := r.directLocalize(s, pInf, pInf+2, alg, lInf)
	if err != nil {
		return nil, err
	}
	next, err := r.directLocalize(s, pInf, pInf+2, alg, lInf+1)
	if err != nil {
		return nil, err
	}

	// Unwrap corner longitudes around the ground point before the solve so
	// antimeridian-spanning quadrilaterals stay continuous.
	lonA := geodesy.NormalizeLongitude(previous[0].Longitude, ground.Longitude)
	lonB := geodesy.NormalizeLongitude(previous[1].Longitude, ground.Longitude)
	lonC := geodesy.NormalizeLongitude(next[0].Longitude, ground.Longitude)
	lonD := geodesy.NormalizeLongitude(next[1].Longitude, ground.Longitude)

	u, v := interpolationCoordinates(ground.Longitude, ground.Latitude,
		lonA, previous[0].Latitude,
		lonB, previous[1].Latitude,
		lonC, next[0].Latitude,
		lonD, next[1].Latitude)

	pixel := float64(pInf) + u
	if pixel < -1 || pixel > float64(s.NbPixels()) {
		return nil, ruggederr.New(ruggederr.GroundPointOutOfColumnRange, 0, s.NbPixels()-1, pixel)
	}

	return &SensorPixel{Line: lInf + v, Pixel: pixel}, nil
}

// targetDirection computes the direction of the target ground point in the
// spacecraft frame at the given line date, with the same corrections the
// direct pipeline applies.
func (r *Rugged) targetDirection(s *sensor.LineSensor, target geom.Vec3, line float64) (geom.Vec3, error) {
	date := s.Date(line)
	scToInert, err := r.provider.ScToInertial(date)
	if err != nil {
		return geom.Vec3{}, err
	}
	inertToBody, err := r.provider.InertialToBody(date)
	if err != nil {
		return geom.Vec3{}, err
	}
	bodyToInert := inertToBody.Inverse()

	refInert := scToInert.TransformPosition(s.Position())

	var targetInert geom.Vec3
	if r.lightTimeCorrection {
		iT := bodyToInert.TransformPosition(target)
		deltaT := refInert.DistanceTo(iT) / SpeedOfLight
		targetInert = bodyToInert.ShiftedBy(-deltaT).TransformPosition(target)
	} else {
		targetInert = bodyToInert.TransformPosition(target)
	}

	lInert := targetInert.Sub(refInert).Normalized()
	if r.aberrationOfLightCorrection {
		// Inverse of the direct-path composition: the spacecraft velocity is
		// subtracted from the incoming direction.
		lInert = geom.LinComb(SpeedOfLight, lInert, -1.0, scToInert.Vel).Normalized()
	}

	return scToInert.Rot.Inverse().Apply(lInert), nil
}
