// Package sensor models pushbroom line sensors: the per-pixel lines of sight
// in the spacecraft frame, the sensor position, the mean observation plane
// and the mapping between line numbers and acquisition dates.
package sensor

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/sesteves/rugged-main/internal/geom"
)

// Datation maps real-valued line numbers to acquisition dates and back. The
// mapping must be monotonically increasing.
type Datation interface {
	Date(line float64) time.Time
	Line(date time.Time) float64
}

// LinearDatation is the usual constant-line-rate datation.
type LinearDatation struct {
	refDate time.Time
	refLine float64
	rate    float64 // lines per second
}

// NewLinearDatation builds a linear datation: line refLine is acquired at
// refDate and rate lines are acquired per second.
func NewLinearDatation(refDate time.Time, refLine, rate float64) LinearDatation {
	return LinearDatation{refDate: refDate, refLine: refLine, rate: rate}
}

// Date implements Datation.
func (d LinearDatation) Date(line float64) time.Time {
	return d.refDate.Add(time.Duration((line - d.refLine) / d.rate * float64(time.Second)))
}

// Line implements Datation.
func (d LinearDatation) Line(date time.Time) float64 {
	return d.refLine + d.rate*date.Sub(d.refDate).Seconds()
}

// LineSensor is a named line sensor. Immutable after construction.
type LineSensor struct {
	name     string
	position geom.Vec3
	los      []geom.Vec3
	datation Datation
	normal   geom.Vec3
}

// New builds a line sensor, deriving the mean plane normal from the pixel
// lines of sight (see MeanPlaneNormal).
func New(name string, position geom.Vec3, los []geom.Vec3, datation Datation) *LineSensor {
	return NewWithMeanPlane(name, position, los, datation, meanPlaneNormal(los))
}

// NewWithMeanPlane builds a line sensor with an explicitly supplied mean
// plane normal.
func NewWithMeanPlane(name string, position geom.Vec3, los []geom.Vec3, datation Datation, normal geom.Vec3) *LineSensor {
	return &LineSensor{
		name:     name,
		position: position,
		los:      append([]geom.Vec3(nil), los...),
		datation: datation,
		normal:   normal.Normalized(),
	}
}

// Name returns the sensor name.
func (s *LineSensor) Name() string { return s.name }

// Position returns the sensor origin in the spacecraft frame.
func (s *LineSensor) Position() geom.Vec3 { return s.position }

// NbPixels returns the number of pixels in the line.
func (s *LineSensor) NbPixels() int { return len(s.los) }

// LOS returns the line of sight of pixel i in the spacecraft frame.
func (s *LineSensor) LOS(i int) geom.Vec3 { return s.los[i] }

// InterpolatedLOS returns the line of sight at a fractional pixel index: the
// normalized linear blend of the two neighboring pixels, clamped to the
// sensor ends.
func (s *LineSensor) InterpolatedLOS(x float64) geom.Vec3 {
	iInf := int(x)
	if iInf < 0 {
		iInf = 0
	}
	if iInf > len(s.los)-2 {
		iInf = len(s.los) - 2
	}
	iSup := iInf + 1
	return geom.LinComb(float64(iSup)-x, s.los[iInf], x-float64(iInf), s.los[iSup]).Normalized()
}

// Date returns the acquisition date of the given line.
func (s *LineSensor) Date(line float64) time.Time {
	return s.datation.Date(line)
}

// Line returns the fractional line acquired at the given date.
func (s *LineSensor) Line(date time.Time) float64 {
	return s.datation.Line(date)
}

// MeanPlaneNormal returns the unit normal of the sensor's mean observation
// plane.
func (s *LineSensor) MeanPlaneNormal() geom.Vec3 { return s.normal }

// meanPlaneNormal extracts the axis with the least LOS variance: the right
// singular vector of the pixel LOS matrix associated with its smallest
// singular value. The sign is fixed so the normal crossed with the first
// pixel points toward increasing pixel indices.
func meanPlaneNormal(los []geom.Vec3) geom.Vec3 {
	data := make([]float64, 0, 3*len(los))
	for _, l := range los {
		data = append(data, l.X, l.Y, l.Z)
	}
	a := mat.NewDense(len(los), 3, data)

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThinV) {
		// Degenerate LOS sets do not occur with real sensors; fall back to
		// a plane built from the line ends.
		return los[0].Cross(los[len(los)-1]).Normalized()
	}

	var v mat.Dense
	svd.VTo(&v)
	// Singular values come out in descending order; the last column of V
	// spans the least-variance axis.
	normal := geom.Vec3{X: v.At(0, 2), Y: v.At(1, 2), Z: v.At(2, 2)}.Normalized()

	if normal.Dot(los[0].Cross(los[len(los)-1])) < 0 {
		normal = normal.Scale(-1)
	}
	return normal
}
