package piconuclear

import (
	"fmt"
	"math"
)

// Measurement is what the pipeline extracts from one channel of a capture.
type Measurement struct {
	Peaks  []Peak
	Time   float64
	TimeOK bool
	// Trace is the filtered signal, kept only when requested.
	Trace []float64
}

type CalibratedEvent struct {
	Capture    uint64
	AmplitudeA float64
	AmplitudeB float64
	// PeaksA and PeaksB count pile-up candidates per channel.
	PeaksA  int
	PeaksB  int
	EnergyA float64
	EnergyB float64
	TimeA   float64
	TimeB   float64
	TimeAOK bool
	TimeBOK bool
	// TimeDiff is TimeB - TimeA in samples, valid only if both times are.
	TimeDiff      float64
	TimeDiffValid bool
	Coincident    bool
	TraceA        []float64
	TraceB        []float64
	WaveformA     Waveform
	WaveformB     Waveform
}

// EventBuilder turns a synchronized capture into a CalibratedEvent. It holds
// only configuration and can be shared between goroutines.
type EventBuilder struct {
	ChannelA       ChannelConfig
	ChannelB       ChannelConfig
	ZeroCrossing   ZeroCrossingParams
	Coincidence    CoincidenceConfig
	KeepTraces     bool
	KeepWaveforms  bool
	SampleInterval float64
}

func NewEventBuilder(config Configuration) (EventBuilder, error) {
	if err := config.Validate(); err != nil {
		return EventBuilder{}, err
	}
	return EventBuilder{
		ChannelA:       config.ChannelA,
		ChannelB:       config.ChannelB,
		ZeroCrossing:   config.ZeroCrossing,
		Coincidence:    config.Coincidence,
		KeepTraces:     config.WriteTraces,
		KeepWaveforms:  config.WriteWaveforms,
		SampleInterval: config.SampleInterval,
	}, nil
}

// Measure runs amplitude extraction and timing on one channel.
func (b EventBuilder) Measure(v Waveform, channel ChannelConfig, sampleInterval float64) (Measurement, error) {
	peaks, trace, err := Amplitude(v, channel.Filter, sampleInterval)
	if err != nil {
		return Measurement{}, err
	}
	t, ok := ZeroCrossing(v, channel.Filter.B, b.ZeroCrossing.Shift, b.ZeroCrossing.Chi, b.ZeroCrossing.Falling)
	m := Measurement{Peaks: peaks, Time: t, TimeOK: ok}
	if b.KeepTraces {
		m.Trace = trace
	}
	return m, nil
}

// Build processes both channels of a capture. Errors only concern this
// capture; configuration problems are caught by NewEventBuilder.
func (b EventBuilder) Build(capture Capture) (CalibratedEvent, error) {
	if len(capture.A) != len(capture.B) {
		return CalibratedEvent{}, fmt.Errorf("capture %d: %w (%d != %d)", capture.Count, ErrChannelMismatch, len(capture.A), len(capture.B))
	}
	interval := capture.SampleInterval
	if !(interval > 0) {
		interval = b.SampleInterval
	}

	measA, err := b.Measure(capture.A, b.ChannelA, interval)
	if err != nil {
		return CalibratedEvent{}, fmt.Errorf("capture %d channel A: %w", capture.Count, err)
	}
	measB, err := b.Measure(capture.B, b.ChannelB, interval)
	if err != nil {
		return CalibratedEvent{}, fmt.Errorf("capture %d channel B: %w", capture.Count, err)
	}

	event := b.Combine(capture.Count, measA, measB, interval)
	if b.KeepWaveforms {
		event.WaveformA = capture.A
		event.WaveformB = capture.B
	}
	return event, nil
}

// Combine calibrates two channel measurements and classifies the pair.
// With several pile-up candidates the highest one is used.
func (b EventBuilder) Combine(count uint64, measA, measB Measurement, sampleInterval float64) CalibratedEvent {
	peakA, _ := HighestPeak(measA.Peaks)
	peakB, _ := HighestPeak(measB.Peaks)

	event := CalibratedEvent{
		Capture:    count,
		AmplitudeA: peakA.Value,
		AmplitudeB: peakB.Value,
		PeaksA:     len(measA.Peaks),
		PeaksB:     len(measB.Peaks),
		EnergyA:    Energy(peakA.Value, b.ChannelA.Calibration),
		EnergyB:    Energy(peakB.Value, b.ChannelB.Calibration),
		TimeA:      measA.Time,
		TimeB:      measB.Time,
		TimeAOK:    measA.TimeOK,
		TimeBOK:    measB.TimeOK,
		TraceA:     measA.Trace,
		TraceB:     measB.Trace,
	}
	if event.TimeAOK && event.TimeBOK {
		event.TimeDiff = event.TimeB - event.TimeA
		event.TimeDiffValid = true
	}

	event.Coincident = InWindow(event.EnergyA, b.ChannelA.Window) && InWindow(event.EnergyB, b.ChannelB.Window)
	if b.Coincidence.RequireTime {
		event.Coincident = event.Coincident && event.TimeDiffValid &&
			math.Abs(event.TimeDiff*sampleInterval) <= b.Coincidence.DT
	}
	return event
}

// InWindow reports whether energy lies in [low, high]. A channel without a
// window accepts every energy.
func InWindow(energy float64, window []float64) bool {
	if len(window) < 2 {
		return true
	}
	return window[0] <= energy && energy <= window[1]
}
