package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	piconuclear "github.com/kmiernik/piconuclear_go/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFlags(t *testing.T) {
	config := piconuclear.DefaultConfiguration()
	applyFlags(&config, "out/run", 0, 0)
	assert.Equal(t, "out/run", config.FileOut)
	assert.Equal(t, 5.0, config.MaxTime)

	config = piconuclear.DefaultConfiguration()
	applyFlags(&config, "", 0, 100)
	assert.Equal(t, 100, config.MaxGood)
	assert.Zero(t, config.MaxTime)

	// without any limit the run falls back to five seconds
	config = piconuclear.DefaultConfiguration()
	config.MaxTime = 0
	applyFlags(&config, "", 0, 0)
	assert.Equal(t, 5.0, config.MaxTime)

	config = piconuclear.DefaultConfiguration()
	config.MaxTime = 0
	config.MaxEvents = 20
	applyFlags(&config, "", 0, 0)
	assert.Zero(t, config.MaxTime)
}

func TestOpenSource(t *testing.T) {
	config := piconuclear.DefaultConfiguration()
	src, err := openSource(config)
	require.NoError(t, err)
	assert.IsType(t, &piconuclear.SyntheticSource{}, src)

	synthetic, err := piconuclear.NewSyntheticSource(config)
	require.NoError(t, err)
	capture, err := synthetic.Next(context.Background())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, piconuclear.WriteCaptures(&buf, []piconuclear.Capture{capture}))
	config.FileIn = filepath.Join(t.TempDir(), "captures.txt")
	require.NoError(t, os.WriteFile(config.FileIn, buf.Bytes(), 0o644))

	config.Source = "demo"
	src, err = openSource(config)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := src.Next(context.Background())
		require.NoError(t, err)
	}

	config.Source = "replay"
	src, err = openSource(config)
	require.NoError(t, err)
	replay, ok := src.(*piconuclear.ReplaySource)
	require.True(t, ok)
	assert.Equal(t, 1, replay.Len())
	assert.False(t, replay.Loop)

	config.FileIn = ""
	_, err = openSource(config)
	var cerr *piconuclear.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "file_in", cerr.Field)

	config.Source = "picoscope"
	_, err = openSource(config)
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "source", cerr.Field)
}

func TestEnergyHalfWidth(t *testing.T) {
	h, err := piconuclear.NewHistogram(0, 1024, 1024)
	require.NoError(t, err)
	h.Counts[500] = 10
	assert.InDelta(t, 0.15*500.5, energyHalfWidth(h), 1e-9)

	h.Counts[500] = 0
	h.Counts[10] = 10
	assert.Equal(t, 6.0, energyHalfWidth(h))
}

func TestPeakChannel(t *testing.T) {
	fit := piconuclear.PeakFit{X0: 511}
	position, ok := peakChannel(fit, []float64{11, 2})
	require.True(t, ok)
	assert.Equal(t, 250.0, position)

	_, ok = peakChannel(fit, []float64{0, 1, 1e-3})
	assert.False(t, ok)
	_, ok = peakChannel(fit, nil)
	assert.False(t, ok)
}
