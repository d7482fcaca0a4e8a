package rugged

import (
	"errors"
	"math"

	"github.com/sesteves/rugged-main/internal/rugged/ruggederr"
)

// errNoBracket reports that the objective has no sign change in the search
// interval. Inverse localization absorbs it into a "ground point not seen"
// answer.
var errNoBracket = errors.New("no bracketing interval")

// bracketScanPoints is the number of interior samples probed when the
// interval endpoints do not bracket a root. The objective functions solved
// here (mean-plane and pixel crossings) are smooth and nearly monotonic, so
// a coarse sweep is enough to find the sign change when one exists.
const bracketScanPoints = 32

// solveBracketing finds a root of f in [lo, hi] to within absAcc, spending at
// most maxEval objective evaluations. It brackets the root by a coarse sweep,
// then tightens with bisection accelerated by secant steps.
func solveBracketing(f func(float64) (float64, error), lo, hi, absAcc float64, maxEval int) (float64, error) {
	evals := 0
	eval := func(x float64) (float64, error) {
		evals++
		if evals > maxEval {
			return 0, ruggederr.New(ruggederr.TooManyEvaluations, maxEval)
		}
		return f(x)
	}

	fLo, err := eval(lo)
	if err != nil {
		return 0, err
	}
	if fLo == 0 {
		return lo, nil
	}
	fHi, err := eval(hi)
	if err != nil {
		return 0, err
	}
	if fHi == 0 {
		return hi, nil
	}

	if fLo*fHi > 0 {
		lo, fLo, hi, fHi, err = scanForBracket(eval, lo, fLo, hi, fHi)
		if err != nil {
			return 0, err
		}
	}

	for hi-lo > absAcc {
		// Secant estimate, kept only when it lands comfortably inside the
		// bracket; otherwise plain bisection.
		mid := lo + (hi-lo)*0.5
		if d := fHi - fLo; d != 0 {
			sec := lo - fLo*(hi-lo)/d
			if sec > lo+0.1*(hi-lo) && sec < hi-0.1*(hi-lo) {
				mid = sec
			}
		}

		fMid, err := eval(mid)
		if err != nil {
			return 0, err
		}
		if fMid == 0 {
			return mid, nil
		}
		if fLo*fMid < 0 {
			hi, fHi = mid, fMid
		} else {
			lo, fLo = mid, fMid
		}
	}

	return lo + (hi-lo)*0.5, nil
}

// scanForBracket sweeps the interval looking for a sign change.
func scanForBracket(eval func(float64) (float64, error), lo, fLo, hi, fHi float64) (float64, float64, float64, float64, error) {
	prevX, prevF := lo, fLo
	for k := 1; k <= bracketScanPoints; k++ {
		x := lo + (hi-lo)*float64(k)/float64(bracketScanPoints+1)
		fx, err := eval(x)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		if fx == 0 || prevF*fx < 0 {
			return prevX, prevF, x, fx, nil
		}
		prevX, prevF = x, fx
	}
	if prevF*fHi < 0 {
		return prevX, prevF, hi, fHi, nil
	}
	return 0, 0, 0, 0, errNoBracket
}

// interpolationCoordinates finds the bilinear coordinates (u, v) ∈ [0,1]²
// mapping the quadrilateral (A, B, C, D) onto the point (x, y):
//
//	P(u,v) = A + (B−A)u + (C−A)v + (D−B−C+A)uv
//
// A is the lower-left corner (u grows toward B, v toward C). The system is
// solved by Newton iteration from the quadrilateral center; the Jacobian is
// affine in (u, v) so convergence is quadratic.
func interpolationCoordinates(x, y,
	xA, yA, xB, yB, xC, yC, xD, yD float64) (float64, float64) {

	kx := xD - xB - xC + xA
	ky := yD - yB - yC + yA

	u, v := 0.5, 0.5
	for iter := 0; iter < 20; iter++ {
		fx := xA + (xB-xA)*u + (xC-xA)*v + kx*u*v - x
		fy := yA + (yB-yA)*u + (yC-yA)*v + ky*u*v - y

		j00 := (xB - xA) + kx*v
		j01 := (xC - xA) + kx*u
		j10 := (yB - yA) + ky*v
		j11 := (yC - yA) + ky*u

		det := j00*j11 - j01*j10
		if det == 0 {
			break
		}
		du := (fx*j11 - fy*j01) / det
		dv := (fy*j00 - fx*j10) / det
		u -= du
		v -= dv

		if math.Abs(du) < 1e-12 && math.Abs(dv) < 1e-12 {
			break
		}
	}
	return u, v
}
