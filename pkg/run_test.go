package piconuclear

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	captures []Capture
	next     int
	err      error
}

func (s *sliceSource) Next(ctx context.Context) (Capture, error) {
	if s.next >= len(s.captures) {
		if s.err != nil {
			return Capture{}, s.err
		}
		return Capture{}, io.EOF
	}
	c := s.captures[s.next]
	s.next++
	return c, nil
}

type recordingSink struct {
	captures []uint64
	stats    RunStats
	finished bool
	fail     error
}

func (s *recordingSink) WriteEvent(e *CalibratedEvent) error {
	if s.fail != nil {
		return s.fail
	}
	s.captures = append(s.captures, e.Capture)
	return nil
}

func (s *recordingSink) Finish(stats RunStats, all, good *HistogramSet) error {
	s.stats = stats
	s.finished = true
	return nil
}

func runConfig() Configuration {
	config := smallSynthetic()
	config.Synthetic.Background = 0.5
	config.ChannelA.Window = []float64{400, 600}
	config.ChannelB.Window = []float64{400, 600}
	config.MaxTime = 0
	return config
}

func executeRun(t *testing.T, config Configuration, limit int, sinks ...EventSink) *Run {
	t.Helper()
	src, err := NewSyntheticSource(config)
	require.NoError(t, err)
	src.Limit = limit
	r, err := NewRun(config, src, sinks...)
	require.NoError(t, err)
	require.NoError(t, r.Execute(context.Background()))
	require.NoError(t, r.Close())
	return r
}

func TestRunSequential(t *testing.T) {
	sink := &recordingSink{}
	r := executeRun(t, runConfig(), 40, sink)

	assert.Equal(t, 40, r.Stats.Captures)
	assert.Equal(t, 40, r.Stats.Total)
	assert.Zero(t, r.Stats.Skipped)
	assert.Len(t, r.Events, 40)
	assert.Greater(t, r.Stats.Good, 0)
	assert.Less(t, r.Stats.Good, 40)
	assert.Equal(t, int64(r.Stats.Total), r.All.EnergyA.Total()+outside(r.All.EnergyA, r.Events, true))
	assert.Equal(t, int64(r.Stats.Good), r.Good.EnergyA.Total())

	require.True(t, sink.finished)
	assert.Equal(t, r.Stats, sink.stats)
	for i, c := range sink.captures {
		assert.Equal(t, uint64(i), c)
	}
	assert.False(t, r.Stats.Stop.Before(r.Stats.Start))
}

// outside counts events whose energy falls outside the histogram range.
func outside(h *Histogram, events []CalibratedEvent, channelA bool) int64 {
	var n int64
	for _, e := range events {
		v := e.EnergyB
		if channelA {
			v = e.EnergyA
		}
		if v < h.Low || v > h.High {
			n++
		}
	}
	return n
}

func TestRunParallelMatchesSequential(t *testing.T) {
	config := runConfig()
	sequential := executeRun(t, config, 60)

	config.NumWorkers = 4
	parallel := executeRun(t, config, 60)

	assert.Equal(t, sequential.Stats.Captures, parallel.Stats.Captures)
	assert.Equal(t, sequential.Stats.Good, parallel.Stats.Good)
	assert.Equal(t, sequential.Stats.NoTiming, parallel.Stats.NoTiming)
	assert.Equal(t, sequential.Events, parallel.Events)
	assert.Equal(t, sequential.All.EnergyA.Counts, parallel.All.EnergyA.Counts)
	assert.Equal(t, sequential.Good.TimeDiff.Counts, parallel.Good.TimeDiff.Counts)
}

func TestRunLimits(t *testing.T) {
	for _, workers := range []int{1, 3} {
		config := runConfig()
		config.NumWorkers = workers
		config.MaxEvents = 7
		r := executeRun(t, config, 0)
		assert.Equal(t, 7, r.Stats.Captures, "max events with %d workers", workers)

		config = runConfig()
		config.NumWorkers = workers
		config.ChannelA.Window = nil
		config.ChannelB.Window = nil
		config.MaxGood = 5
		r = executeRun(t, config, 0)
		assert.Equal(t, 5, r.Stats.Good, "max good with %d workers", workers)
		assert.Equal(t, 5, r.Stats.Captures, "max good with %d workers", workers)

		config = runConfig()
		config.NumWorkers = workers
		config.MaxTime = 0.05
		r = executeRun(t, config, 0)
		assert.Greater(t, r.Stats.Captures, 0)
		assert.GreaterOrEqual(t, r.Stats.Elapsed().Seconds(), 0.05)
	}
}

func TestRunCancelled(t *testing.T) {
	for _, workers := range []int{1, 2} {
		config := runConfig()
		config.NumWorkers = workers
		src, err := NewSyntheticSource(config)
		require.NoError(t, err)
		r, err := NewRun(config, src)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, r.Execute(ctx))
		assert.Zero(t, r.Stats.Captures)
	}
}

func TestRunSkipsBadCaptures(t *testing.T) {
	config := runConfig()
	src, err := NewSyntheticSource(config)
	require.NoError(t, err)
	good, err := src.Next(context.Background())
	require.NoError(t, err)

	source := &sliceSource{captures: []Capture{
		good,
		{Count: 1, A: make(Waveform, 5), B: make(Waveform, 5)},
		{Count: 2, A: make(Waveform, 300), B: make(Waveform, 200)},
		good,
	}}
	sink := &recordingSink{}
	r, err := NewRun(config, source, sink)
	require.NoError(t, err)
	require.NoError(t, r.Execute(context.Background()))

	assert.Equal(t, 4, r.Stats.Captures)
	assert.Equal(t, 2, r.Stats.Total)
	assert.Equal(t, 2, r.Stats.Skipped)
	assert.Len(t, sink.captures, 2)
}

func TestRunErrors(t *testing.T) {
	config := runConfig()
	broken := errors.New("digitizer lost")
	source := &sliceSource{err: broken}
	r, err := NewRun(config, source)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Execute(context.Background()), broken)

	diskFull := errors.New("disk full")
	for _, workers := range []int{1, 2} {
		config.NumWorkers = workers
		src, err := NewSyntheticSource(config)
		require.NoError(t, err)
		src.Limit = 10
		r, err := NewRun(config, src, &recordingSink{fail: diskFull})
		require.NoError(t, err)
		assert.ErrorIs(t, r.Execute(context.Background()), diskFull)
		assert.Equal(t, 1, r.Stats.Captures)
	}

	config = runConfig()
	config.NumWorkers = 0
	_, err = NewRun(config, source)
	var cerr *ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

func TestRunStopsOnUnusableSampleInterval(t *testing.T) {
	step := make(Waveform, 200)
	for i := 100; i < len(step); i++ {
		step[i] = 10
	}
	for _, workers := range []int{1, 2} {
		config := runConfig()
		config.NumWorkers = workers
		source := &sliceSource{}
		for i := 0; i < 5; i++ {
			// exp(1e4/tau) overflows for the default tau
			source.captures = append(source.captures, Capture{Count: uint64(i), A: step, B: step, SampleInterval: 1e4})
		}
		sink := &recordingSink{}
		r, err := NewRun(config, source, sink)
		require.NoError(t, err)

		err = r.Execute(context.Background())
		var cerr *ConfigurationError
		require.ErrorAs(t, err, &cerr, "%d workers", workers)
		assert.Equal(t, "filter.tau", cerr.Field)
		assert.Zero(t, r.Stats.Skipped)
		assert.Zero(t, r.Stats.Total)
		assert.Empty(t, sink.captures)
	}
}

func TestIsSkippable(t *testing.T) {
	assert.True(t, IsSkippable(fmt.Errorf("capture 3: %w: index out of range", ErrCapturePanic)))
	assert.True(t, IsSkippable(&InputShapeError{Length: 2, Required: 10}))
	assert.False(t, IsSkippable(&ConfigurationError{Field: "filter.tau"}))
	assert.False(t, IsSkippable(errors.New("disk full")))
}

func TestProgressText(t *testing.T) {
	stats := RunStats{Total: 10, Good: 4, Skipped: 1}
	stats.Stop = stats.Start.Add(2e9)
	assert.Equal(t, "10 events, 4 good, 1 skipped, 2.0 s, 5.0 events/s", stats.ProgressText())
}
