package piconuclear

import (
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat"
)

// Waveform is one triggered acquisition of one channel. Processing code
// never modifies it.
type Waveform []float64

// Capture is a synchronized pair of waveforms delivered by a source.
type Capture struct {
	// Count increases monotonically over a run.
	Count uint64
	A     Waveform
	B     Waveform
	// SampleInterval is the time per sample in the device time unit.
	SampleInterval float64
}

// NewWaveform converts raw ADC codes or calibrated voltages into a Waveform.
func NewWaveform[T constraints.Integer | constraints.Float](samples []T) Waveform {
	w := make(Waveform, len(samples))
	for i, s := range samples {
		w[i] = float64(s)
	}
	return w
}

// Baseline is the mean of the first n samples.
func Baseline(v []float64, n int) float64 {
	if n > len(v) {
		n = len(v)
	}
	if n <= 0 {
		return 0
	}
	return stat.Mean(v[:n], nil)
}
