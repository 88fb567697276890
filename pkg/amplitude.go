package piconuclear

import (
	"math"

	"github.com/tphakala/simd/f64"
)

// Amplitude estimates the pulse amplitude(s) of v with the method configured
// in params. The filtered trace is only returned by the trapezoidal method.
func Amplitude(v []float64, params FilterParams, sampleInterval float64) ([]Peak, []float64, error) {
	switch params.Method {
	case MethodSum, MethodMax:
		if err := params.Validate(sampleInterval); err != nil {
			return nil, nil, err
		}
		if err := checkShape(v, params); err != nil {
			return nil, nil, err
		}
	default:
		return Trapezoidal(v, params, sampleInterval, params.Pileup)
	}

	base := Baseline(v, params.B)
	index := 0
	largest := -1.0
	for i, s := range v {
		if d := math.Abs(s - base); d > largest {
			largest = d
			index = i
		}
	}

	if params.Method == MethodSum {
		n := float64(len(v))
		value := math.Abs(f64.Sum(v)-n*base) / n
		return []Peak{{Value: value, Index: index}}, nil, nil
	}
	return []Peak{{Value: largest, Index: index}}, nil, nil
}

// HighestPeak collapses pile-up candidates into the single amplitude used
// for calibration: the largest value, the earliest one among equals.
func HighestPeak(peaks []Peak) (Peak, bool) {
	if len(peaks) == 0 {
		return Peak{}, false
	}
	best := peaks[0]
	for _, p := range peaks[1:] {
		if p.Value > best.Value {
			best = p
		}
	}
	return best, true
}
