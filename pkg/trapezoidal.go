package piconuclear

// Recursive trapezoidal shaper after V.T. Jordanov, NIM A 353 (1994) 261.

import (
	"fmt"
	"math"

	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/floats"
)

// Peak is one amplitude candidate found in a filtered trace.
type Peak struct {
	Value float64
	Index int
}

// TrapezoidalStages holds every intermediate sequence of the filter.
// S is the unnormalised output; the filtered trace is S/L.
type TrapezoidalStages struct {
	D []float64
	P []float64
	R []float64
	S []float64
}

// poleZeroConstant returns M = 1/(exp(sampleInterval/tau) - 1), which
// cancels an exponential decay with time constant tau.
func poleZeroConstant(sampleInterval, tau float64) (float64, error) {
	if !(tau > 0) {
		return 0, &ConfigurationError{Field: "filter.tau", Reason: fmt.Sprintf("must be positive, got %g", tau)}
	}
	if !(sampleInterval > 0) {
		return 0, &ConfigurationError{Field: "sample_interval", Reason: fmt.Sprintf("must be positive, got %g", sampleInterval)}
	}
	e := math.Exp(sampleInterval / tau)
	if e == 1 || math.IsInf(e, 0) {
		return 0, &ConfigurationError{
			Field:  "filter.tau",
			Reason: fmt.Sprintf("exp(%g/%g) = %g leaves no usable pole-zero constant", sampleInterval, tau, e),
		}
	}
	return 1 / (e - 1), nil
}

func checkShape(v []float64, params FilterParams) error {
	if len(v) == 0 || len(v) < params.B {
		return &InputShapeError{Length: len(v), Required: params.B, Reason: "baseline window longer than trace"}
	}
	if params.Method == MethodTrapezoidal && len(v) < params.L {
		return &InputShapeError{Length: len(v), Required: params.L, Reason: "rise length longer than trace"}
	}
	return nil
}

// TrapezoidalFilterStages runs the filter recurrences over v. Every output
// element depends only on earlier input, so the loop could run on a stream.
// Traces shorter than 2L+G only go through the first branches.
func TrapezoidalFilterStages(v []float64, params FilterParams, sampleInterval float64) (TrapezoidalStages, error) {
	params.Method = MethodTrapezoidal
	if err := params.Validate(sampleInterval); err != nil {
		return TrapezoidalStages{}, err
	}
	if err := checkShape(v, params); err != nil {
		return TrapezoidalStages{}, err
	}
	m, err := poleZeroConstant(sampleInterval, params.Tau)
	if err != nil {
		return TrapezoidalStages{}, err
	}

	base := Baseline(v, params.B)
	k := params.L
	l := params.L + params.G
	n := len(v)

	st := TrapezoidalStages{
		D: make([]float64, n),
		P: make([]float64, n),
		R: make([]float64, n),
		S: make([]float64, n),
	}

	for i := 0; i < n; i++ {
		var d float64
		switch {
		case i < k:
			d = v[i] - base
		case i < l:
			d = v[i] - v[i-k]
		case i < l+k:
			d = v[i] - v[i-k] - v[i-l] + base
		default:
			d = v[i] - v[i-k] - v[i-l] + v[i-l-k]
		}

		p := d
		s := 0.0
		if i > 0 {
			p += st.P[i-1]
			s = st.S[i-1]
		}
		r := p + m*d

		st.D[i] = d
		st.P[i] = p
		st.R[i] = r
		st.S[i] = s + r
	}

	if configuration.Verbosity > 3 {
		message := fmt.Sprintf("trapezoidal: N=%d base=%.3f M=%.4f L=%d G=%d", n, base, m, k, params.G)
		logger.Info(message, "trapezoidal")
	}
	return st, nil
}

// Trapezoidal filters v and extracts amplitudes. It returns the amplitude
// candidates and the filtered trace s/L.
//
// In PileupSingle mode the single candidate is max|s|/L at its first index.
// In PileupMulti mode every local maximum of |s|/L with prominence of at
// least threshold*tau, spaced by at least L samples, is returned in index
// order. When no local maximum qualifies the global maximum is returned so
// that a multi search never reports fewer pulses than a single one.
func Trapezoidal(v []float64, params FilterParams, sampleInterval float64, mode PileupMode) ([]Peak, []float64, error) {
	st, err := TrapezoidalFilterStages(v, params, sampleInterval)
	if err != nil {
		return nil, nil, err
	}

	trace := make([]float64, len(st.S))
	f64.Scale(trace, st.S, 1/float64(params.L))

	abs := make([]float64, len(trace))
	for i, s := range trace {
		abs[i] = math.Abs(s)
	}

	best := floats.MaxIdx(abs)
	single := []Peak{{Value: abs[best], Index: best}}
	if mode != PileupMulti {
		return single, trace, nil
	}

	indices := FindPeaks(abs, params.Threshold*params.Tau, params.L)
	if len(indices) == 0 {
		return single, trace, nil
	}
	peaks := make([]Peak, len(indices))
	for i, idx := range indices {
		peaks[i] = Peak{Value: abs[idx], Index: idx}
	}
	return peaks, trace, nil
}
