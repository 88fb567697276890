package piconuclear

// Digital zero-crossing timing after M. Nakhostin et al.,
// NIM A 775 (2015) 71-76.

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

const (
	// samples on each side of the first negative discriminant sample
	zcWindowBefore = 3
	zcWindowAfter  = 3

	rootImagTolerance = 1e-9
	rootEdgeTolerance = 1e-12
)

// Discriminant builds chi*(trace-bs) - (delayed trace - bs), negated for
// falling pulses, where bs is the mean of the first baseLen samples.
func Discriminant(trace []float64, baseLen, shift int, chi float64, falling bool) []float64 {
	bs := Baseline(trace, baseLen)
	zc := make([]float64, len(trace))
	for i, v := range trace {
		inv := 0.0
		if i >= shift {
			inv = trace[i-shift] - bs
		}
		z := chi*(v-bs) - inv
		if falling {
			z = -z
		}
		zc[i] = z
	}
	return zc
}

// ZeroCrossing returns the trigger time of trace in (fractional) samples.
// ok is false when no crossing could be located; the returned time is then
// 0. Failures are never reported as errors so a bad capture only loses its
// timing information.
func ZeroCrossing(trace []float64, baseLen, shift int, chi float64, falling bool) (t float64, ok bool) {
	t, err := zeroCrossingTime(trace, baseLen, shift, chi, falling)
	if err != nil {
		if configuration.Verbosity > 2 {
			logger.Info(err.Error(), "zeroCrossing")
		}
		return 0, false
	}
	return t, true
}

func zeroCrossingTime(trace []float64, baseLen, shift int, chi float64, falling bool) (t float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = 0
			err = &NumericalDegeneracy{Reason: fmt.Sprintf("recovered: %v", r)}
		}
	}()

	n := len(trace)
	if baseLen <= 0 || baseLen > n {
		return 0, &NumericalDegeneracy{Reason: fmt.Sprintf("baseline of %d samples on a %d sample trace", baseLen, n)}
	}
	if shift <= 0 || shift >= n {
		return 0, &NumericalDegeneracy{Reason: fmt.Sprintf("shift %d on a %d sample trace", shift, n)}
	}

	zc := Discriminant(trace, baseLen, shift, chi, falling)

	tLim := floats.MaxIdx(zc)
	t0 := -1
	for i := tLim; i < n; i++ {
		if zc[i] < 0 {
			t0 = i
			break
		}
	}
	if t0 < 0 {
		return 0, &NumericalDegeneracy{Reason: "discriminant does not go negative after its maximum"}
	}
	if t0-zcWindowBefore < 0 || t0+zcWindowAfter > n {
		return 0, &NumericalDegeneracy{Reason: fmt.Sprintf("interpolation window around %d outside trace", t0)}
	}

	xs := make([]float64, 0, zcWindowBefore+zcWindowAfter)
	for i := t0 - zcWindowBefore; i < t0+zcWindowAfter; i++ {
		xs = append(xs, float64(i))
	}
	ys := zc[t0-zcWindowBefore : t0+zcWindowAfter]

	return firstSplineRoot(xs, ys)
}

// firstSplineRoot fits a not-a-knot cubic spline through (xs, ys) and
// returns its smallest real root strictly between the first and last knot.
func firstSplineRoot(xs, ys []float64) (float64, error) {
	var spline interp.NotAKnotCubic
	if err := spline.Fit(xs, ys); err != nil {
		return 0, &NumericalDegeneracy{Reason: fmt.Sprintf("spline fit: %v", err)}
	}

	first := xs[0]
	last := xs[len(xs)-1]
	for i := 0; i < len(xs)-1; i++ {
		x0, x1 := xs[i], xs[i+1]
		h := x1 - x0
		y0, y1 := ys[i], ys[i+1]
		m0 := spline.PredictDerivative(x0) * h
		m1 := spline.PredictDerivative(x1) * h

		// Hermite form of the segment as a polynomial in u = (x-x0)/h
		coeffs := []float64{
			y0,
			m0,
			3*(y1-y0) - 2*m0 - m1,
			2*(y0-y1) + m0 + m1,
		}
		for _, u := range realRoots(coeffs) {
			if u < -rootEdgeTolerance || u > 1+rootEdgeTolerance {
				continue
			}
			x := x0 + u*h
			if x > first && x < last {
				return x, nil
			}
		}
	}
	return 0, &NumericalDegeneracy{Reason: "spline has no real root inside the window"}
}

// realRoots returns the real roots, ascending, of the polynomial
// coeffs[0] + coeffs[1]*u + ... using the eigenvalues of its companion
// matrix. An identically zero polynomial has no isolated roots.
func realRoots(coeffs []float64) []float64 {
	scale := 0.0
	for _, c := range coeffs {
		scale = math.Max(scale, math.Abs(c))
	}
	if scale == 0 {
		return nil
	}
	degree := len(coeffs) - 1
	for degree > 0 && math.Abs(coeffs[degree]) <= 1e-14*scale {
		degree--
	}

	switch degree {
	case 0:
		return nil
	case 1:
		return []float64{-coeffs[0] / coeffs[1]}
	}

	lead := coeffs[degree]
	companion := mat.NewDense(degree, degree, nil)
	for i := 1; i < degree; i++ {
		companion.Set(i, i-1, 1)
	}
	for i := 0; i < degree; i++ {
		companion.Set(i, degree-1, -coeffs[i]/lead)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(companion, mat.EigenNone); !ok {
		return nil
	}
	roots := make([]float64, 0, degree)
	for _, v := range eig.Values(nil) {
		if math.Abs(imag(v)) <= rootImagTolerance*(1+math.Abs(real(v))) {
			roots = append(roots, real(v))
		}
	}
	sort.Float64s(roots)
	return roots
}
