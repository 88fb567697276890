package main

import (
	"fmt"
	"math"

	piconuclear "github.com/kmiernik/piconuclear_go/pkg"
)

// openSource picks the capture source named in the configuration.
func openSource(config piconuclear.Configuration) (piconuclear.Source, error) {
	switch config.Source {
	case "synthetic", "":
		return piconuclear.NewSyntheticSource(config)
	case "replay", "file":
		if config.FileIn == "" {
			return nil, &piconuclear.ConfigurationError{Field: "file_in", Reason: "replay source needs an input file"}
		}
		return piconuclear.OpenReplaySource(config.FileIn)
	case "demo":
		if config.FileIn == "" {
			return nil, &piconuclear.ConfigurationError{Field: "file_in", Reason: "demo source needs an input file"}
		}
		src, err := piconuclear.OpenReplaySource(config.FileIn)
		if err != nil {
			return nil, err
		}
		src.Loop = true
		return src, nil
	}
	return nil, &piconuclear.ConfigurationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", config.Source)}
}

// eventPrinter logs every event as it is accepted.
type eventPrinter struct {
	logger piconuclear.Logger
}

func (p eventPrinter) WriteEvent(e *piconuclear.CalibratedEvent) error {
	p.logger.Info(fmt.Sprintf("%d %s", e.Capture, piconuclear.FormatRecord(e)), "event")
	return nil
}

func (p eventPrinter) Finish(piconuclear.RunStats, *piconuclear.HistogramSet, *piconuclear.HistogramSet) error {
	return nil
}

var _ piconuclear.EventSink = eventPrinter{}

func printSummary(r *piconuclear.Run) {
	stats := r.Stats
	logger.Info(fmt.Sprintf("Stop at %s", stats.Stop.Format("2006-01-02 15:04:05")), "summary")
	logger.Info(fmt.Sprintf("Total running time: %.3f s", stats.Elapsed().Seconds()), "summary")
	logger.Info(fmt.Sprintf("Total events: %d", stats.Total), "summary")
	logger.Info(fmt.Sprintf("Total good events: %d", stats.Good), "summary")
	if stats.Skipped > 0 {
		logger.Info(fmt.Sprintf("Skipped captures: %d", stats.Skipped), "summary")
	}
	if stats.NoTiming > 0 {
		logger.Info(fmt.Sprintf("Events without time difference: %d", stats.NoTiming), "summary")
	}
	if stats.Total == 0 {
		logger.Info("No data collected", "summary")
		return
	}
	if stats.Good == 0 {
		return
	}

	fits := []struct {
		name        string
		h           *piconuclear.Histogram
		halfWidth   float64
		calibration []float64
	}{
		{"dT", r.Good.TimeDiff, float64(configuration.TRange), nil},
		{"CH A", r.Good.EnergyA, energyHalfWidth(r.Good.EnergyA), configuration.ChannelA.Calibration},
		{"CH B", r.Good.EnergyB, energyHalfWidth(r.Good.EnergyB), configuration.ChannelB.Calibration},
	}
	for _, f := range fits {
		fit, err := piconuclear.FitAroundMaximum(f.h, f.halfWidth)
		if err != nil {
			logger.Info(fmt.Sprintf("%s: could not fit selected data: %v", f.name, err), "summary")
			continue
		}
		logger.Info(fmt.Sprintf("%s: %s", f.name, fit), "summary")
		if position, ok := peakChannel(fit, f.calibration); ok {
			logger.Info(fmt.Sprintf("%s: peak at channel %.1f", f.name, position), "summary")
		}
	}
}

// peakChannel converts a fitted energy back to the amplitude channel. Only
// linear calibrations can be inverted.
func peakChannel(fit piconuclear.PeakFit, calibration []float64) (float64, bool) {
	if len(calibration) != 2 {
		return 0, false
	}
	position, err := piconuclear.Channel(fit.X0, calibration)
	return position, err == nil
}

// energyHalfWidth is the fit half width around a photopeak: 15% of its
// position but at least six bins.
func energyHalfWidth(h *piconuclear.Histogram) float64 {
	best := 0
	for i, c := range h.Counts {
		if c > h.Counts[best] {
			best = i
		}
	}
	x0 := h.Centers()[best]
	return math.Max(0.15*x0, 6*h.BinWidth())
}
