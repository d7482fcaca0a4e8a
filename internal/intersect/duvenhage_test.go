package intersect

import (
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/sesteves/rugged-main/internal/dem"
	"github.com/sesteves/rugged-main/internal/geodesy"
	"github.com/sesteves/rugged-main/internal/geom"
	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
)

const deg = math.Pi / 180

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testEllipsoid(t *testing.T) geodesy.Ellipsoid {
	t.Helper()
	e, err := geodesy.SelectEllipsoid(geodesy.WGS84)
	if err != nil {
		t.Fatalf("SelectEllipsoid: %v", err)
	}
	return e
}

// synthUpdater serves 0.5°-aligned tiles sampled from an elevation function,
// padded one sample on each side.
func synthUpdater(elevation func(lat, lon float64) float64) dem.Updater {
	const tileSize = 0.5 * deg
	const samples = 33
	step := tileSize / float64(samples-1)

	return dem.UpdaterFunc(func(lat, lon float64, tile dem.UpdatableTile) error {
		baseLat := math.Floor(lat/tileSize) * tileSize
		baseLon := math.Floor(lon/tileSize) * tileSize
		rows := samples + 2
		tile.SetGeometry(baseLat-step, baseLon-step, step, step, rows, rows)
		for i := 0; i < rows; i++ {
			for j := 0; j < rows; j++ {
				h := elevation(baseLat+float64(i-1)*step, baseLon+float64(j-1)*step)
				if err := tile.SetElevation(i, j, h); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func constantDEM(h float64) func(lat, lon float64) float64 {
	return func(lat, lon float64) float64 { return h }
}

// coneDEM is a conical hill centered at (latC, lonC).
func coneDEM(latC, lonC, radius, peak float64) func(lat, lon float64) float64 {
	return func(lat, lon float64) float64 {
		dLat := lat - latC
		dLon := geodesy.NormalizeLongitude(lon, lonC) - lonC
		dist := math.Sqrt(dLat*dLat + dLon*dLon*math.Cos(latC)*math.Cos(latC))
		if dist >= radius {
			return 0
		}
		return peak * (1 - dist/radius)
	}
}

// nadirRay returns a spacecraft position 700 km above the geodetic point and
// the downward line of sight.
func nadirRay(e geodesy.Ellipsoid, lat, lon float64) (geom.Vec3, geom.Vec3) {
	ground := e.Cartesian(geodesy.GeodeticPoint{Latitude: lat, Longitude: lon})
	up := geodesy.GeodeticPoint{Latitude: lat, Longitude: lon}.Zenith()
	pos := ground.Add(up.Scale(700000))
	return pos, up.Scale(-1)
}

func TestDuvenhageFlatDEMNadir(t *testing.T) {
	e := testEllipsoid(t)
	alg, err := Select(Duvenhage, synthUpdater(constantDEM(0)), 8, testLogger())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	pos, los := nadirRay(e, 0, 0)
	gp, err := alg.Intersection(e, pos, los)
	if err != nil {
		t.Fatalf("Intersection: %v", err)
	}
	if math.Abs(gp.Latitude) > 1e-9 || math.Abs(gp.Longitude) > 1e-9 {
		t.Errorf("ground point: (%v, %v) deg, want (0, 0)", gp.Latitude/deg, gp.Longitude/deg)
	}
	if math.Abs(gp.Altitude) > 0.01 {
		t.Errorf("altitude: got %v, want 0 ± 1 cm", gp.Altitude)
	}
}

func TestDuvenhageElevatedFlatDEM(t *testing.T) {
	e := testEllipsoid(t)
	alg, err := Select(Duvenhage, synthUpdater(constantDEM(1500)), 8, testLogger())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	pos, los := nadirRay(e, 30*deg, 45*deg)
	gp, err := alg.Intersection(e, pos, los)
	if err != nil {
		t.Fatalf("Intersection: %v", err)
	}
	if math.Abs(gp.Altitude-1500) > 0.5 {
		t.Errorf("altitude: got %v, want 1500", gp.Altitude)
	}
}

// TestDuvenhageObliqueOnConeHill grazes a conical hill with a 30° off-nadir
// ray and cross-checks the hit against the exhaustive scan.
func TestDuvenhageObliqueOnConeHill(t *testing.T) {
	e := testEllipsoid(t)
	latC, lonC := 10*deg, 20*deg
	elevation := coneDEM(latC, lonC, 0.1*deg, 1000)

	duv, err := Select(Duvenhage, synthUpdater(elevation), 8, testLogger())
	if err != nil {
		t.Fatalf("Select duvenhage: %v", err)
	}
	ref, err := Select(BasicScanForTestsOnly, synthUpdater(elevation), 8, testLogger())
	if err != nil {
		t.Fatalf("Select basic scan: %v", err)
	}

	// 30° off-nadir ray aimed so it hits the hill flank.
	ground := e.Cartesian(geodesy.GeodeticPoint{Latitude: latC, Longitude: lonC})
	up := geodesy.GeodeticPoint{Latitude: latC, Longitude: lonC}.Zenith()
	north := geom.Vec3{Z: 1}.Sub(up.Scale(up.Z)).Normalized()
	pos := ground.Add(up.Scale(700000)).Add(north.Scale(-700000 * math.Tan(30*deg)))
	los := ground.Add(north.Scale(0.04 * deg * e.EquatorialRadius())).Sub(pos).Normalized()

	gp, err := duv.Intersection(e, pos, los)
	if err != nil {
		t.Fatalf("duvenhage Intersection: %v", err)
	}
	want, err := ref.Intersection(e, pos, los)
	if err != nil {
		t.Fatalf("basic scan Intersection: %v", err)
	}

	if gp.Altitude <= 10 || gp.Altitude >= 990 {
		t.Errorf("hit altitude %v not on the hill flank", gp.Altitude)
	}
	if math.Abs(gp.Altitude-want.Altitude) > 1.0 {
		t.Errorf("altitude: duvenhage %v vs scan %v", gp.Altitude, want.Altitude)
	}
	if math.Abs(gp.Latitude-want.Latitude) > 1e-7 || math.Abs(gp.Longitude-want.Longitude) > 1e-7 {
		t.Errorf("position: duvenhage (%v, %v) vs scan (%v, %v)",
			gp.Latitude/deg, gp.Longitude/deg, want.Latitude/deg, want.Longitude/deg)
	}

	// The hit must sit on the bilinear DEM surface.
	tile := dem.NewTile()
	if err := synthUpdater(elevation).UpdateTile(gp.Latitude, gp.Longitude, tile); err != nil {
		t.Fatalf("UpdateTile: %v", err)
	}
	if err := tile.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	h, err := tile.InterpolateElevation(gp.Latitude, gp.Longitude)
	if err != nil {
		t.Fatalf("InterpolateElevation: %v", err)
	}
	if math.Abs(gp.Altitude-h) > 1.0 {
		t.Errorf("hit altitude %v vs DEM surface %v", gp.Altitude, h)
	}
}

func TestDuvenhageFlatBodyMatchesExact(t *testing.T) {
	e := testEllipsoid(t)
	elevation := coneDEM(10*deg, 20*deg, 0.1*deg, 1000)

	exact, _ := Select(Duvenhage, synthUpdater(elevation), 8, testLogger())
	flat, _ := Select(DuvenhageFlatBody, synthUpdater(elevation), 8, testLogger())

	pos, los := nadirRay(e, 10.02*deg, 20.01*deg)
	gpExact, err := exact.Intersection(e, pos, los)
	if err != nil {
		t.Fatalf("exact: %v", err)
	}
	gpFlat, err := flat.Intersection(e, pos, los)
	if err != nil {
		t.Fatalf("flat body: %v", err)
	}

	// Small tiles: both variants agree to well under a cell.
	if math.Abs(gpExact.Latitude-gpFlat.Latitude) > 1e-6 ||
		math.Abs(gpExact.Longitude-gpFlat.Longitude) > 1e-6 ||
		math.Abs(gpExact.Altitude-gpFlat.Altitude) > 2.0 {
		t.Errorf("variants diverge: exact %+v flat %+v", gpExact.GeodeticPoint, gpFlat.GeodeticPoint)
	}
}

func TestDuvenhageMiss(t *testing.T) {
	e := testEllipsoid(t)
	alg, _ := Select(Duvenhage, synthUpdater(constantDEM(0)), 8, testLogger())

	pos, _ := nadirRay(e, 0, 0)
	// Looking away from the body entirely.
	_, err := alg.Intersection(e, pos, geom.Vec3{X: 1}.Normalized())
	if !ruggederr.IsKind(err, ruggederr.LineOfSightDoesNotReachGround) {
		t.Errorf("err = %v, want LineOfSightDoesNotReachGround", err)
	}
}

func TestDuvenhageBehindSpacecraft(t *testing.T) {
	e := testEllipsoid(t)
	alg, _ := Select(Duvenhage, synthUpdater(constantDEM(0)), 8, testLogger())

	// Below ground, looking up through the ellipsoid center: the only
	// shell crossings are behind the ray start.
	pos := geom.Vec3{X: e.EquatorialRadius() - 10000}
	los := geom.Vec3{X: 1}
	_, err := alg.Intersection(e, pos, los)
	if err == nil {
		t.Fatal("expected an error for a ray starting under the shell looking up")
	}
}

// TestDuvenhageAntimeridian checks longitude continuity for a ray landing
// right next to the ±180° meridian.
func TestDuvenhageAntimeridian(t *testing.T) {
	e := testEllipsoid(t)
	alg, _ := Select(Duvenhage, synthUpdater(constantDEM(250)), 8, testLogger())

	for _, lon := range []float64{179.98 * deg, -179.98 * deg, 180 * deg} {
		pos, los := nadirRay(e, 0.1*deg, lon)
		gp, err := alg.Intersection(e, pos, los)
		if err != nil {
			t.Fatalf("Intersection at lon %v: %v", lon/deg, err)
		}
		ref := e.Geodetic(pos).Longitude
		if math.Abs(gp.Longitude-geodesy.NormalizeLongitude(lon, ref)) > 1e-8 {
			t.Errorf("lon %v deg: got %v deg (ref %v deg), discontinuous",
				lon/deg, gp.Longitude/deg, ref/deg)
		}
		if math.Abs(gp.Altitude-250) > 0.5 {
			t.Errorf("lon %v deg: altitude %v, want 250", lon/deg, gp.Altitude)
		}
	}
}

func TestDuvenhageRefineIntersection(t *testing.T) {
	e := testEllipsoid(t)
	elevation := coneDEM(10*deg, 20*deg, 0.1*deg, 1000)
	alg, _ := Select(Duvenhage, synthUpdater(elevation), 8, testLogger())

	pos, los := nadirRay(e, 10.01*deg, 20.0*deg)
	gp, err := alg.Intersection(e, pos, los)
	if err != nil {
		t.Fatalf("Intersection: %v", err)
	}

	refined, err := alg.RefineIntersection(e, pos, los, gp)
	if err != nil {
		t.Fatalf("RefineIntersection: %v", err)
	}
	if math.Abs(refined.Latitude-gp.Latitude) > 1e-9 ||
		math.Abs(refined.Altitude-gp.Altitude) > 1e-3 {
		t.Errorf("refine moved a converged hit: %+v vs %+v", refined.GeodeticPoint, gp.GeodeticPoint)
	}
}

func TestIgnoreDEMAlgorithm(t *testing.T) {
	e := testEllipsoid(t)
	alg, err := Select(IgnoreDEMUseEllipsoid, nil, 0, testLogger())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	pos, los := nadirRay(e, 5*deg, -30*deg)
	gp, err := alg.Intersection(e, pos, los)
	if err != nil {
		t.Fatalf("Intersection: %v", err)
	}
	if math.Abs(gp.Altitude) > 1e-9 {
		t.Errorf("altitude: got %v, want 0", gp.Altitude)
	}
	if math.Abs(gp.Latitude-5*deg) > 1e-9 {
		t.Errorf("latitude: got %v deg, want 5", gp.Latitude/deg)
	}
}

func TestFixedAltitudeAlgorithm(t *testing.T) {
	e := testEllipsoid(t)
	alg := NewFixedAltitude(1234.0)

	pos, los := nadirRay(e, 0, 0)
	gp, err := alg.Intersection(e, pos, los)
	if err != nil {
		t.Fatalf("Intersection: %v", err)
	}
	if math.Abs(gp.Altitude-1234.0) > 1e-9 {
		t.Errorf("altitude: got %v, want 1234", gp.Altitude)
	}

	refined, err := alg.RefineIntersection(e, pos, los, gp)
	if err != nil {
		t.Fatalf("RefineIntersection: %v", err)
	}
	if math.Abs(refined.Altitude-1234.0) > 1e-9 {
		t.Errorf("refined altitude: got %v", refined.Altitude)
	}
}

// TestBasicScanFlatDEM sanity-checks the reference algorithm on its own.
func TestBasicScanFlatDEM(t *testing.T) {
	e := testEllipsoid(t)
	alg, _ := Select(BasicScanForTestsOnly, synthUpdater(constantDEM(800)), 8, testLogger())

	pos, los := nadirRay(e, -20*deg, 60*deg)
	gp, err := alg.Intersection(e, pos, los)
	if err != nil {
		t.Fatalf("Intersection: %v", err)
	}
	if math.Abs(gp.Altitude-800) > 0.5 {
		t.Errorf("altitude: got %v, want 800", gp.Altitude)
	}
	if math.Abs(gp.Latitude+20*deg) > 1e-8 {
		t.Errorf("latitude: got %v deg, want -20", gp.Latitude/deg)
	}
}
