package piconuclear

import (
	"errors"
	"fmt"
)

// ValidateCalibration checks a polynomial calibration given in low to high
// order. At least an offset and a slope are required.
func ValidateCalibration(coeffs []float64) error {
	if len(coeffs) < 2 {
		return fmt.Errorf("need at least [a0, a1], got %d coefficients", len(coeffs))
	}
	return nil
}

// Energy evaluates a0 + a1*x + a2*x^2 + ... with Horner's scheme.
func Energy(x float64, coeffs []float64) float64 {
	e := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		e = e*x + coeffs[i]
	}
	return e
}

// Channel inverts a linear calibration: it returns the amplitude that maps
// to energy. Higher order calibrations are not inverted.
func Channel(energy float64, coeffs []float64) (float64, error) {
	if len(coeffs) != 2 {
		return 0, fmt.Errorf("channel lookup needs a linear calibration, got %d coefficients", len(coeffs))
	}
	if coeffs[1] == 0 {
		return 0, errors.New("calibration slope is zero")
	}
	return (energy - coeffs[0]) / coeffs[1], nil
}

// WindowChannels maps an energy window [low, high] back to amplitude
// channels with a linear calibration.
func WindowChannels(window []float64, coeffs []float64) ([]float64, error) {
	if len(window) != 2 {
		return nil, fmt.Errorf("need a [low, high] window, got %d values", len(window))
	}
	low, err := Channel(window[0], coeffs)
	if err != nil {
		return nil, err
	}
	high, err := Channel(window[1], coeffs)
	if err != nil {
		return nil, err
	}
	if low > high {
		low, high = high, low
	}
	return []float64{low, high}, nil
}
