package piconuclear

import (
	"bytes"
	"context"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallSynthetic() Configuration {
	config := DefaultConfiguration()
	config.Synthetic.Samples = 300
	config.Synthetic.PreTrigger = 60
	return config
}

func TestSyntheticSourceDeterministic(t *testing.T) {
	config := smallSynthetic()
	first, err := NewSyntheticSource(config)
	require.NoError(t, err)
	second, err := NewSyntheticSource(config)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		a, err := first.Next(ctx)
		require.NoError(t, err)
		b, err := second.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, uint64(i), a.Count)
		assert.Len(t, a.A, 300)
		assert.Equal(t, config.SampleInterval, a.SampleInterval)
	}

	config.Synthetic.Seed = 2
	other, err := NewSyntheticSource(config)
	require.NoError(t, err)
	c, err := other.Next(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, c.A, make(Waveform, 300))
}

func TestSyntheticSourceAmplitude(t *testing.T) {
	config := smallSynthetic()
	config.Synthetic.Noise = 0
	config.Synthetic.Jitter = 0
	config.Synthetic.Background = 0
	src, err := NewSyntheticSource(config)
	require.NoError(t, err)

	capture, err := src.Next(context.Background())
	require.NoError(t, err)
	peaks, _, err := Amplitude(capture.A, config.ChannelA.Filter, capture.SampleInterval)
	require.NoError(t, err)
	require.Len(t, peaks, 1)
	assert.InEpsilon(t, 511, peaks[0].Value, 1e-3)
}

func TestSyntheticSourceQuantized(t *testing.T) {
	config := smallSynthetic()
	config.Synthetic.Noise = 0
	config.Synthetic.Jitter = 0
	config.Synthetic.Background = 0
	config.Synthetic.Quantize = true
	src, err := NewSyntheticSource(config)
	require.NoError(t, err)

	capture, err := src.Next(context.Background())
	require.NoError(t, err)
	for i, v := range capture.A {
		require.Equal(t, math.Round(v), v, "sample %d", i)
	}
	assert.Equal(t, 168.0, capture.A[config.Synthetic.PreTrigger])

	peaks, _, err := Amplitude(capture.A, config.ChannelA.Filter, capture.SampleInterval)
	require.NoError(t, err)
	assert.InDelta(t, 511, peaks[0].Value, 5)
}

func TestSyntheticSourceLimitAndCancel(t *testing.T) {
	src, err := NewSyntheticSource(smallSynthetic())
	require.NoError(t, err)
	src.Limit = 2

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := src.Next(ctx)
		require.NoError(t, err)
	}
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	src, err = NewSyntheticSource(smallSynthetic())
	require.NoError(t, err)
	_, err = src.Next(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSyntheticSourceErrors(t *testing.T) {
	config := smallSynthetic()
	config.Synthetic.PreTrigger = config.Synthetic.Samples
	_, err := NewSyntheticSource(config)
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)

	config = smallSynthetic()
	config.Synthetic.Lines = nil
	_, err = NewSyntheticSource(config)
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "synthetic.lines", cerr.Field)
}

func TestReplayRoundTrip(t *testing.T) {
	src, err := NewSyntheticSource(smallSynthetic())
	require.NoError(t, err)
	var captures []Capture
	for i := 0; i < 3; i++ {
		c, err := src.Next(context.Background())
		require.NoError(t, err)
		captures = append(captures, c)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCaptures(&buf, captures))

	replay, err := ReadReplay(&buf)
	require.NoError(t, err)
	require.Equal(t, 3, replay.Len())

	for i, want := range captures {
		got, err := replay.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(i), got.Count)
		assert.Equal(t, 4.0, got.SampleInterval)
		require.Len(t, got.A, len(want.A))
		for j := range want.A {
			assert.InDelta(t, want.A[j], got.A[j], 5e-4)
			assert.InDelta(t, want.B[j], got.B[j], 5e-4)
		}
	}
	_, err = replay.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplayLoop(t *testing.T) {
	replay, err := ReadReplay(strings.NewReader("0 1 2 5 6\n4 1 2 5 6\n"))
	require.NoError(t, err)
	replay.Loop = true

	var counts []uint64
	var firstA []float64
	for i := 0; i < 5; i++ {
		c, err := replay.Next(context.Background())
		require.NoError(t, err)
		counts = append(counts, c.Count)
		firstA = append(firstA, c.A[0])
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, counts)
	assert.Equal(t, []float64{1, 2, 1, 2, 1}, firstA)
}

func TestReadReplayErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"only comments", "# nothing\n"},
		{"unpaired columns", "0 1 2 3\n4 1 2 3\n"},
		{"ragged rows", "0 1 2\n4 1\n"},
		{"not a number", "0 1 x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadReplay(strings.NewReader(tt.input))
			require.Error(t, err)
		})
	}
}

func TestWriteCapturesMismatch(t *testing.T) {
	err := WriteCaptures(io.Discard, []Capture{
		{A: make(Waveform, 10), B: make(Waveform, 10)},
		{A: make(Waveform, 9), B: make(Waveform, 9)},
	})
	assert.ErrorIs(t, err, ErrChannelMismatch)

	assert.Error(t, WriteCaptures(io.Discard, nil))
}
