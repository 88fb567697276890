package piconuclear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Histogram is a frequency table over fixed-width bins covering
// [Low, High]. The last bin includes High; values outside are dropped.
type Histogram struct {
	Low    float64
	High   float64
	Counts []int64
	width  float64
}

func NewHistogram(low, high float64, bins int) (*Histogram, error) {
	if bins <= 0 {
		return nil, &ConfigurationError{Field: "bins", Reason: fmt.Sprintf("must be positive, got %d", bins)}
	}
	if !(high > low) || math.IsInf(high-low, 0) {
		return nil, &ConfigurationError{Field: "range", Reason: fmt.Sprintf("empty range [%g, %g]", low, high)}
	}
	return &Histogram{
		Low:    low,
		High:   high,
		Counts: make([]int64, bins),
		width:  (high - low) / float64(bins),
	}, nil
}

func (h *Histogram) bin(v float64) (int, bool) {
	if math.IsNaN(v) || v < h.Low || v > h.High {
		return 0, false
	}
	i := int((v - h.Low) / h.width)
	if i >= len(h.Counts) {
		i = len(h.Counts) - 1
	}
	return i, true
}

// Fill counts v and reports whether it fell inside the range.
func (h *Histogram) Fill(v float64) bool {
	i, ok := h.bin(v)
	if ok {
		h.Counts[i]++
	}
	return ok
}

func (h *Histogram) BinWidth() float64 {
	return h.width
}

// Edges returns the len(Counts)+1 bin edges.
func (h *Histogram) Edges() []float64 {
	return floats.Span(make([]float64, len(h.Counts)+1), h.Low, h.High)
}

func (h *Histogram) Centers() []float64 {
	centers := make([]float64, len(h.Counts))
	for i := range centers {
		centers[i] = h.Low + (float64(i)+0.5)*h.width
	}
	return centers
}

func (h *Histogram) Total() int64 {
	var total int64
	for _, c := range h.Counts {
		total += c
	}
	return total
}

// Histogram2D counts (x, y) pairs; both coordinates must be in range.
type Histogram2D struct {
	X      *Histogram
	Y      *Histogram
	Counts [][]int64
}

func NewHistogram2D(xLow, xHigh float64, xBins int, yLow, yHigh float64, yBins int) (*Histogram2D, error) {
	x, err := NewHistogram(xLow, xHigh, xBins)
	if err != nil {
		return nil, err
	}
	y, err := NewHistogram(yLow, yHigh, yBins)
	if err != nil {
		return nil, err
	}
	counts := make([][]int64, xBins)
	for i := range counts {
		counts[i] = make([]int64, yBins)
	}
	return &Histogram2D{X: x, Y: y, Counts: counts}, nil
}

func (h *Histogram2D) Fill(x, y float64) bool {
	i, okX := h.X.bin(x)
	j, okY := h.Y.bin(y)
	if !okX || !okY {
		return false
	}
	h.Counts[i][j]++
	return true
}

// HistogramSet holds the running spectra of one event class.
type HistogramSet struct {
	TimeDiff *Histogram
	EnergyA  *Histogram
	EnergyB  *Histogram
	Scatter  *Histogram2D
}

// NewHistogramSet creates the spectra described by the configuration: a
// symmetric time-difference range in samples and energy ranges [0, ch_range].
func NewHistogramSet(config Configuration) (*HistogramSet, error) {
	tRange := float64(config.TRange)
	chRange := float64(config.ChRange)

	timeDiff, err := NewHistogram(-tRange, tRange, config.TBins)
	if err != nil {
		return nil, fmt.Errorf("time difference histogram: %w", err)
	}
	energyA, err := NewHistogram(0, chRange, config.ChBins)
	if err != nil {
		return nil, fmt.Errorf("energy A histogram: %w", err)
	}
	energyB, err := NewHistogram(0, chRange, config.ChBins)
	if err != nil {
		return nil, fmt.Errorf("energy B histogram: %w", err)
	}
	scatter, err := NewHistogram2D(0, chRange, config.ScatterBins, 0, chRange, config.ScatterBins)
	if err != nil {
		return nil, fmt.Errorf("scatter histogram: %w", err)
	}
	return &HistogramSet{
		TimeDiff: timeDiff,
		EnergyA:  energyA,
		EnergyB:  energyB,
		Scatter:  scatter,
	}, nil
}

func (s *HistogramSet) Add(e *CalibratedEvent) {
	if e.TimeDiffValid {
		s.TimeDiff.Fill(e.TimeDiff)
	}
	s.EnergyA.Fill(e.EnergyA)
	s.EnergyB.Fill(e.EnergyB)
	s.Scatter.Fill(e.EnergyA, e.EnergyB)
}
