package piconuclear

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// progressEvery is the number of captures between progress messages.
const progressEvery = 1000

type RunStats struct {
	Start time.Time
	Stop  time.Time
	// Captures counts everything read from the source, Total the captures
	// that produced an event.
	Captures int
	Total    int
	Good     int
	Skipped  int
	NoTiming int
}

func (s RunStats) Elapsed() time.Duration {
	if s.Stop.IsZero() {
		return time.Since(s.Start)
	}
	return s.Stop.Sub(s.Start)
}

// ProgressText summarizes a run in progress for the console.
func (s RunStats) ProgressText() string {
	rate := 0.0
	if seconds := s.Elapsed().Seconds(); seconds > 0 {
		rate = float64(s.Total) / seconds
	}
	return fmt.Sprintf("%d events, %d good, %d skipped, %.1f s, %.1f events/s",
		s.Total, s.Good, s.Skipped, s.Elapsed().Seconds(), rate)
}

// EventSink receives every processed event in capture order.
type EventSink interface {
	WriteEvent(e *CalibratedEvent) error
	Finish(stats RunStats, all, good *HistogramSet) error
}

// Run reads captures from a source, builds events and accumulates them.
// Events and histograms only grow; nothing is removed during a run.
type Run struct {
	Config  Configuration
	Builder EventBuilder
	Source  Source
	Sinks   []EventSink
	All     *HistogramSet
	Good    *HistogramSet
	Events  []CalibratedEvent
	Stats   RunStats
	// KeepEvents stores every event in Events.
	KeepEvents bool
}

func NewRun(config Configuration, source Source, sinks ...EventSink) (*Run, error) {
	builder, err := NewEventBuilder(config)
	if err != nil {
		return nil, err
	}
	all, err := NewHistogramSet(config)
	if err != nil {
		return nil, err
	}
	good, err := NewHistogramSet(config)
	if err != nil {
		return nil, err
	}
	return &Run{
		Config:     config,
		Builder:    builder,
		Source:     source,
		Sinks:      sinks,
		All:        all,
		Good:       good,
		KeepEvents: true,
	}, nil
}

// limitReached checks the stop conditions between captures.
func (r *Run) limitReached() bool {
	if r.Config.MaxEvents > 0 && r.Stats.Captures >= r.Config.MaxEvents {
		return true
	}
	if r.Config.MaxGood > 0 && r.Stats.Good >= r.Config.MaxGood {
		return true
	}
	if r.Config.MaxTime > 0 && time.Since(r.Stats.Start).Seconds() >= r.Config.MaxTime {
		return true
	}
	return false
}

// process builds one event. Panics are turned into errors so that a single
// bad capture never stops the run.
func (r *Run) process(capture Capture) (event CalibratedEvent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("capture %d: %w: %v", capture.Count, ErrCapturePanic, rec)
		}
	}()
	return r.Builder.Build(capture)
}

// accept records the outcome of one capture. Errors that are not limited
// to the capture, such as a sample interval the filter cannot use, stop the
// run like a failing sink does.
func (r *Run) accept(event CalibratedEvent, err error) error {
	if err != nil {
		if !IsSkippable(err) {
			return fmt.Errorf("processing capture: %w", err)
		}
		r.Stats.Skipped++
		if r.Config.Verbosity > 1 {
			logger.Info(fmt.Sprintf("skipping %v", err), "run")
		}
		return nil
	}

	r.Stats.Total++
	if !event.TimeDiffValid {
		r.Stats.NoTiming++
	}
	r.All.Add(&event)
	if event.Coincident {
		r.Stats.Good++
		r.Good.Add(&event)
	}
	if r.KeepEvents {
		r.Events = append(r.Events, event)
	}
	for _, sink := range r.Sinks {
		if err := sink.WriteEvent(&event); err != nil {
			return fmt.Errorf("writing event %d: %w", event.Capture, err)
		}
	}
	return nil
}

func (r *Run) progress() {
	if r.Config.Verbosity > 0 && r.Stats.Captures%progressEvery == 0 {
		logger.Info(r.Stats.ProgressText(), "run")
	}
}

// Execute processes captures until the source is exhausted, a limit is
// reached or ctx is cancelled. Cancellation is only checked between
// captures, so the last capture is always either fully accounted or not
// at all.
func (r *Run) Execute(ctx context.Context) error {
	r.Stats.Start = time.Now()
	defer func() { r.Stats.Stop = time.Now() }()

	if r.Config.NumWorkers > 1 {
		return r.executeParallel(ctx)
	}

	for !r.limitReached() {
		if ctx.Err() != nil {
			return nil
		}
		capture, err := r.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("reading capture: %w", err)
		}
		r.Stats.Captures++
		if err := r.accept(r.process(capture)); err != nil {
			return err
		}
		r.progress()
	}
	return nil
}

// Close hands the final statistics and histograms to every sink.
func (r *Run) Close() error {
	if r.Stats.Stop.IsZero() {
		r.Stats.Stop = time.Now()
	}
	var errs []error
	for _, sink := range r.Sinks {
		if err := sink.Finish(r.Stats, r.All, r.Good); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
