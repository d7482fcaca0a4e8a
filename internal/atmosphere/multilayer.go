// Package atmosphere provides the optional multi-layer atmospheric
// refraction model: the line of sight is bent by Snell's law at each layer
// boundary on its way down, then intersected with the DEM tile.
package atmosphere

import (
	"math"

	"github.com/sesteves/rugged-main/internal/dem"
	"github.com/sesteves/rugged-main/internal/geodesy"
	"github.com/sesteves/rugged-main/internal/geom"
	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
)

// layer is one atmospheric shell: the altitude of its lower bound and the
// mean refractive index inside it.
type layer struct {
	lowerAltitude   float64
	refractiveIndex float64
}

// meanAtmosphericRefractions lists the layers in descending altitude order,
// the order a downward ray traverses them.
var meanAtmosphericRefractions = []layer{
	{100000.0, 1.000000},
	{50000.0, 1.000000},
	{40000.0, 1.000001},
	{30000.0, 1.000004},
	{23000.0, 1.000012},
	{18000.0, 1.000028},
	{14000.0, 1.000052},
	{11000.0, 1.000083},
	{9000.0, 1.000106},
	{7000.0, 1.000134},
	{5000.0, 1.000167},
	{3000.0, 1.000206},
	{1000.0, 1.000252},
	{0.0, 1.000278},
	{-1000.0, 1.000306},
}

// MultiLayerModel bends lines of sight through the standard refraction table.
type MultiLayerModel struct {
	ellipsoid geodesy.Ellipsoid
}

// NewMultiLayerModel builds the model over the given reference ellipsoid.
func NewMultiLayerModel(ellipsoid geodesy.Ellipsoid) *MultiLayerModel {
	return &MultiLayerModel{ellipsoid: ellipsoid}
}

// PointOnGround propagates the line of sight from initialPos down through
// the refraction layers, bending it at each boundary below the start point,
// and intersects the refracted ray with the tile's cell under the final
// layer crossing. altitude is the expected ground altitude: traversal stops
// at the layer containing it.
func (m *MultiLayerModel) PointOnGround(initialPos, initialLos, initialZenith geom.Vec3, altitude float64, tile *dem.Tile) (geodesy.NormalizedGeodeticPoint, error) {
	if len(meanAtmosphericRefractions) == 0 ||
		altitude < meanAtmosphericRefractions[len(meanAtmosphericRefractions)-1].lowerAltitude {
		return geodesy.NormalizedGeodeticPoint{}, ruggederr.New(ruggederr.NoLayerData,
			altitude, meanAtmosphericRefractions[len(meanAtmosphericRefractions)-1].lowerAltitude)
	}

	pos := initialPos
	los := initialLos.Normalized()
	zenith := initialZenith.Normalized()
	lonRef := m.ellipsoid.Geodetic(initialPos).Longitude

	// Incidence is measured against the propagation side of the local
	// normal, so a descending ray refracts around the downward axis.
	axis := func(zen geom.Vec3) geom.Vec3 {
		if los.Dot(zen) < 0 {
			return zen.Scale(-1)
		}
		return zen
	}

	theta1 := geom.Angle(los, axis(zenith))
	previousIndex := -1.0

	var gp geodesy.NormalizedGeodeticPoint
	crossed := false
	for _, l := range meanAtmosphericRefractions {
		// Layers above the current position have already been left behind.
		if m.ellipsoid.Geodetic(pos).Altitude < l.lowerAltitude {
			continue
		}

		if previousIndex > 0 && theta1 > 1e-12 {
			// Snell's law at the boundary, then rebuild the refracted
			// direction in the (los, normal) plane.
			theta2 := math.Asin(previousIndex * math.Sin(theta1) / l.refractiveIndex)

			n := axis(zenith)
			cos1 := math.Cos(theta1)
			cos2 := math.Cos(theta2)
			a := math.Sqrt((1 - cos2*cos2) / (1 - cos1*cos1))
			b := cos2 - a*cos1
			los = geom.LinComb(a, los, b, n).Normalized()

			theta1 = theta2
		}

		// Descend to the bottom of this layer.
		boundary, err := m.ellipsoid.PointOnGround(pos, los, l.lowerAltitude, lonRef)
		if err != nil {
			return geodesy.NormalizedGeodeticPoint{}, err
		}
		gp = boundary
		pos = m.ellipsoid.Cartesian(boundary.GeodeticPoint)
		zenith = boundary.Zenith()
		crossed = true

		// A ground altitude on a layer floor belongs to that layer.
		if altitude >= l.lowerAltitude {
			break
		}
		previousIndex = l.refractiveIndex
	}

	if !crossed {
		return geodesy.NormalizedGeodeticPoint{}, ruggederr.New(ruggederr.NoLayerData,
			altitude, meanAtmosphericRefractions[len(meanAtmosphericRefractions)-1].lowerAltitude)
	}

	// Intersect the refracted ray with the DEM cell around the last
	// boundary crossing.
	i := tile.LatitudeIndex(gp.Latitude)
	j := tile.LongitudeIndex(gp.Longitude)
	if i < 0 {
		i = 0
	}
	if i > tile.LatitudeRows()-2 {
		i = tile.LatitudeRows() - 2
	}
	if j < 0 {
		j = 0
	}
	if j > tile.LongitudeColumns()-2 {
		j = tile.LongitudeColumns() - 2
	}

	span := 2 * m.ellipsoid.EquatorialRadius() * math.Max(tile.LatitudeStep(), tile.LongitudeStep())
	entry := m.ellipsoid.NormalizedGeodetic(pos.Sub(los.Scale(span)), lonRef)
	exit := m.ellipsoid.NormalizedGeodetic(pos.Add(los.Scale(span)), lonRef)

	if hit := tile.CellIntersection(entry, exit, i, j); hit != nil {
		return *hit, nil
	}
	return gp, nil
}
