package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	piconuclear "github.com/kmiernik/piconuclear_go/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeUnit(t *testing.T) {
	tests := []struct {
		interval float64
		unit     string
		scale    float64
	}{
		{4, "ns", 1},
		{16, "us", 1000},
		{2000, "ms", 1000000},
	}
	for _, tt := range tests {
		unit, scale := timeUnit(tt.interval)
		assert.Equal(t, tt.unit, unit)
		assert.Equal(t, tt.scale, scale)
	}
}

func TestCollectAndSave(t *testing.T) {
	config := piconuclear.DefaultConfiguration()
	config.Captures = 4
	config.Synthetic.Samples = 200
	config.Synthetic.PreTrigger = 40

	captures, err := collect(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, captures, 4)

	filename := filepath.Join(t.TempDir(), "waves.txt")
	require.NoError(t, saveCaptures(filename, captures))

	// a replay of the saved file stops at its end
	config.Source = "replay"
	config.FileIn = filename
	config.Captures = 10
	replayed, err := collect(context.Background(), config)
	require.NoError(t, err)
	assert.Len(t, replayed, 4)

	_, err = os.Stat(filename)
	require.NoError(t, err)
}

func TestLoadConfiguration(t *testing.T) {
	config, err := loadConfiguration("")
	require.NoError(t, err)
	assert.Equal(t, piconuclear.DefaultConfiguration(), config)

	filename := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"A": {"filter": {"L": 0}}}`), 0o644))
	_, err = loadConfiguration(filename)
	var cerr *piconuclear.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "A.filter.L", cerr.Field)

	_, err = loadConfiguration(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
