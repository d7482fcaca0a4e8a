// Package ephem turns tabulated spacecraft ephemeris and attitude samples
// into the time-parameterized transforms the localization pipeline consumes:
// spacecraft→inertial from the samples, inertial→body from the frame pair.
package ephem

import (
	"sort"
	"time"

	"github.com/sesteves/rugged-main/internal/frames"
	"github.com/sesteves/rugged-main/internal/geom"
	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
)

// PVSample is a position/velocity sample in the inertial frame (meters, m/s).
type PVSample struct {
	Date     time.Time
	Position geom.Vec3
	Velocity geom.Vec3
}

// AttitudeSample is a spacecraft attitude sample: the coordinate rotation
// mapping spacecraft-frame vectors to inertial-frame vectors.
type AttitudeSample struct {
	Date     time.Time
	Rotation geom.Rotation
}

// Provider interpolates the sample tables and exposes the two transforms the
// engine needs. Immutable after construction.
type Provider struct {
	pair frames.Pair

	epoch    time.Time
	pvTimes  []float64
	pv       []PVSample
	attTimes []float64
	att      []AttitudeSample

	pvOrder  int
	attOrder int
}

// NewProvider builds a provider over the given sample tables. Samples are
// sorted by date; interpolation blends the order nearest samples (order is
// clamped to the table length and floored at 2).
func NewProvider(pair frames.Pair, pv []PVSample, pvOrder int, att []AttitudeSample, attOrder int) (*Provider, error) {
	if len(pv) < 2 || len(att) < 2 {
		return nil, ruggederr.New(ruggederr.UninitializedContext)
	}

	pv = append([]PVSample(nil), pv...)
	att = append([]AttitudeSample(nil), att...)
	sort.Slice(pv, func(i, j int) bool { return pv[i].Date.Before(pv[j].Date) })
	sort.Slice(att, func(i, j int) bool { return att[i].Date.Before(att[j].Date) })

	p := &Provider{
		pair:     pair,
		epoch:    pv[0].Date,
		pv:       pv,
		att:      att,
		pvOrder:  clampOrder(pvOrder, len(pv)),
		attOrder: clampOrder(attOrder, len(att)),
	}

	p.pvTimes = make([]float64, len(pv))
	for i, s := range pv {
		p.pvTimes[i] = s.Date.Sub(p.epoch).Seconds()
	}
	p.attTimes = make([]float64, len(att))
	for i, s := range att {
		p.attTimes[i] = s.Date.Sub(p.epoch).Seconds()
	}

	return p, nil
}

func clampOrder(order, n int) int {
	if order < 2 {
		order = 2
	}
	if order > n {
		order = n
	}
	return order
}

// MinDate returns the earliest date covered by both sample tables.
func (p *Provider) MinDate() time.Time {
	minPV := p.pv[0].Date
	minAtt := p.att[0].Date
	if minAtt.After(minPV) {
		return minAtt
	}
	return minPV
}

// MaxDate returns the latest date covered by both sample tables.
func (p *Provider) MaxDate() time.Time {
	maxPV := p.pv[len(p.pv)-1].Date
	maxAtt := p.att[len(p.att)-1].Date
	if maxAtt.Before(maxPV) {
		return maxAtt
	}
	return maxPV
}

func (p *Provider) checkDate(t time.Time) error {
	if t.Before(p.MinDate()) || t.After(p.MaxDate()) {
		return ruggederr.New(ruggederr.OutOfTimeRange,
			t.UTC().Format(time.RFC3339Nano),
			p.MinDate().UTC().Format(time.RFC3339Nano),
			p.MaxDate().UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// ScToInertial returns the spacecraft→inertial transform at time t.
func (p *Provider) ScToInertial(t time.Time) (geom.Transform, error) {
	if err := p.checkDate(t); err != nil {
		return geom.Transform{}, err
	}

	x := t.Sub(p.epoch).Seconds()

	first := window(p.pvTimes, x, p.pvOrder)
	pos := lagrangeVec(p.pvTimes[first:first+p.pvOrder], x, func(i int) geom.Vec3 { return p.pv[first+i].Position })
	vel := lagrangeVec(p.pvTimes[first:first+p.pvOrder], x, func(i int) geom.Vec3 { return p.pv[first+i].Velocity })

	rot := p.interpolateAttitude(x)

	return geom.Transform{
		Rot:   rot,
		Trans: pos,
		Vel:   vel,
	}, nil
}

// InertialToBody returns the inertial→body transform at time t.
func (p *Provider) InertialToBody(t time.Time) (geom.Transform, error) {
	if err := p.checkDate(t); err != nil {
		return geom.Transform{}, err
	}
	return p.pair.InertialToBody(t), nil
}

// interpolateAttitude blends quaternion components over the attOrder nearest
// samples, aligning hemispheres first so the blend never crosses the
// antipodal discontinuity, and renormalizing the result.
func (p *Provider) interpolateAttitude(x float64) geom.Rotation {
	first := window(p.attTimes, x, p.attOrder)

	qs := make([]geom.Rotation, p.attOrder)
	qs[0] = p.att[first].Rotation
	for i := 1; i < p.attOrder; i++ {
		q := p.att[first+i].Rotation
		if q.Dot(qs[i-1]) < 0 {
			q = q.Neg()
		}
		qs[i] = q
	}

	ts := p.attTimes[first : first+p.attOrder]
	w := lagrangeScalar(ts, x, func(i int) float64 { return qs[i].W })
	qx := lagrangeScalar(ts, x, func(i int) float64 { return qs[i].X })
	qy := lagrangeScalar(ts, x, func(i int) float64 { return qs[i].Y })
	qz := lagrangeScalar(ts, x, func(i int) float64 { return qs[i].Z })

	return geom.NewRotation(w, qx, qy, qz)
}

// window returns the start index of the n consecutive samples nearest to x.
func window(times []float64, x float64, n int) int {
	idx := sort.SearchFloat64s(times, x)
	first := idx - n/2
	if first < 0 {
		first = 0
	}
	if first > len(times)-n {
		first = len(times) - n
	}
	return first
}

// lagrangeScalar evaluates the Lagrange interpolation polynomial through
// (ts[i], ys(i)) at x.
func lagrangeScalar(ts []float64, x float64, ys func(int) float64) float64 {
	var sum float64
	for i := range ts {
		li := 1.0
		for j := range ts {
			if j != i {
				li *= (x - ts[j]) / (ts[i] - ts[j])
			}
		}
		sum += li * ys(i)
	}
	return sum
}

// lagrangeVec is lagrangeScalar applied componentwise.
func lagrangeVec(ts []float64, x float64, ys func(int) geom.Vec3) geom.Vec3 {
	var sum geom.Vec3
	for i := range ts {
		li := 1.0
		for j := range ts {
			if j != i {
				li *= (x - ts[j]) / (ts[i] - ts[j])
			}
		}
		sum = sum.Add(ys(i).Scale(li))
	}
	return sum
}
