package piconuclear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// PeakFit holds a Gaussian on a linear background fitted to a spectrum
// region. Area is in counts, X0 and Sigma in the histogram's units.
type PeakFit struct {
	X0     float64
	Sigma  float64
	Area   float64
	A1     float64
	A0     float64
	Errors [5]float64
	Chi2   float64
	NDF    int
}

func (f PeakFit) String() string {
	return fmt.Sprintf("x0 = %.3f +/- %.3f, s = %.3f +/- %.3f, A = %.1f +/- %.1f",
		f.X0, f.Errors[0], f.Sigma, f.Errors[1], f.Area, f.Errors[2])
}

// FWHM returns the full width at half maximum of the fitted peak.
func (f PeakFit) FWHM() float64 {
	return 2 * math.Sqrt(2*math.Ln2) * f.Sigma
}

// gaussLinear is the expected bin content at x for bins of the given width;
// p = [x0, s, A, a1, a0].
func gaussLinear(x, width float64, p []float64) float64 {
	s := math.Abs(p[1])
	if s == 0 {
		return p[3]*x + p[4]
	}
	z := (x - p[0]) / s
	return p[2]*width/math.Sqrt(2*math.Pi*s*s)*math.Exp(-z*z/2) + p[3]*x + p[4]
}

// FitPeak fits the bins of h whose centers lie in [low, high]. It needs at
// least six bins and some counts in the region.
func FitPeak(h *Histogram, low, high float64) (PeakFit, error) {
	centers := h.Centers()
	var xs, ys []float64
	for i, c := range centers {
		if c >= low && c <= high {
			xs = append(xs, c)
			ys = append(ys, float64(h.Counts[i]))
		}
	}
	const nParams = 5
	if len(xs) <= nParams {
		return PeakFit{}, fmt.Errorf("%w: %d bins in [%g, %g]", ErrFitFailed, len(xs), low, high)
	}

	total := 0.0
	peak := 0
	for i, y := range ys {
		total += y
		if y > ys[peak] {
			peak = i
		}
	}
	if total == 0 {
		return PeakFit{}, fmt.Errorf("%w: no counts in [%g, %g]", ErrFitFailed, low, high)
	}

	width := h.BinWidth()
	last := len(xs) - 1
	a1 := (ys[last] - ys[0]) / (xs[last] - xs[0])
	a0 := ys[0] - a1*xs[0]
	background := 0.0
	for _, x := range xs {
		background += a1*x + a0
	}
	_, sigma := stat.MeanStdDev(xs, ys)
	if !(sigma > 0) {
		sigma = width
	}
	area := math.Max(total-background, total/2)
	initial := []float64{xs[peak], sigma / 2, area, a1, a0}

	chi2 := func(p []float64) float64 {
		sum := 0.0
		for i, x := range xs {
			d := ys[i] - gaussLinear(x, width, p)
			sum += d * d
		}
		return sum
	}

	problem := optimize.Problem{Func: chi2}
	settings := &optimize.Settings{
		MajorIterations: 20000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-12,
			Iterations: 200,
		},
	}
	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil && result == nil {
		return PeakFit{}, fmt.Errorf("%w: %v", ErrFitFailed, err)
	}
	p := result.X
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return PeakFit{}, fmt.Errorf("%w: chi2 is not finite", ErrFitFailed)
	}

	fit := PeakFit{
		X0:    p[0],
		Sigma: math.Abs(p[1]),
		Area:  p[2],
		A1:    p[3],
		A0:    p[4],
		Chi2:  result.F,
		NDF:   len(xs) - nParams,
	}

	hessian := mat.NewSymDense(nParams, nil)
	fd.Hessian(hessian, chi2, p, nil)
	var chol mat.Cholesky
	if ok := chol.Factorize(hessian); !ok {
		return fit, fmt.Errorf("%w: curvature matrix is not positive definite", ErrFitFailed)
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return fit, fmt.Errorf("%w: %v", ErrFitFailed, err)
	}
	scale := 2 * result.F / float64(fit.NDF)
	for i := 0; i < nParams; i++ {
		fit.Errors[i] = math.Sqrt(math.Abs(cov.At(i, i) * scale))
	}
	return fit, nil
}

// FitAroundMaximum fits the region of h within halfWidth of its most
// populated bin.
func FitAroundMaximum(h *Histogram, halfWidth float64) (PeakFit, error) {
	if h.Total() == 0 {
		return PeakFit{}, fmt.Errorf("%w: empty histogram", ErrFitFailed)
	}
	best := 0
	for i, c := range h.Counts {
		if c > h.Counts[best] {
			best = i
		}
	}
	x0 := h.Centers()[best]
	return FitPeak(h, x0-halfWidth, x0+halfWidth)
}
