package piconuclear

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFileName(t *testing.T) {
	start := time.Date(2024, 3, 5, 7, 8, 9, 0, time.Local)
	assert.Equal(t, "run_20240305_070809.txt", ListFileName("run", start))
}

func TestFormatRecord(t *testing.T) {
	e := &CalibratedEvent{EnergyA: 511.23456, EnergyB: 12, TimeA: 110.9996, TimeAOK: true, TimeB: 99, TimeBOK: false}
	assert.Equal(t, "511.235 12.000 111.000 0.000", FormatRecord(e))
	assert.Equal(t, "NaN", FormatValue(math.NaN()))
}

func TestListRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	runID := uuid.New()
	config := DefaultConfiguration()
	config.Passwd = "secret"

	lw, err := NewListWriter(&buf, start, runID, config)
	require.NoError(t, err)

	events := []CalibratedEvent{
		{EnergyA: 511.0004, EnergyB: 498.7, TimeA: 110.25, TimeB: 112.123456, TimeAOK: true, TimeBOK: true, Coincident: true},
		{EnergyA: 12.5, EnergyB: 1021.9999, TimeA: 0, TimeB: 130.5, TimeAOK: false, TimeBOK: true},
		{EnergyA: 0.0001, EnergyB: 3.3333, TimeA: 95.55555, TimeB: 96.44444, TimeAOK: true, TimeBOK: true},
	}
	for i := range events {
		require.NoError(t, lw.WriteEvent(&events[i]))
	}
	stats := RunStats{Start: start, Stop: start.Add(2500 * time.Millisecond), Total: 3, Good: 1}
	require.NoError(t, lw.Finish(stats, nil, nil))

	text := buf.String()
	assert.Contains(t, text, "# Run "+runID.String())
	assert.Contains(t, text, "# Start at 2024-03-05 07:08:09")
	assert.Contains(t, text, "# Total running time 2.500 s")
	assert.Contains(t, text, "# Good counts 1")
	assert.NotContains(t, text, "secret")

	records, err := ReadList(strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, records, len(events))
	for i, r := range records {
		e := events[i]
		tA := 0.0
		if e.TimeAOK {
			tA = e.TimeA
		}
		assert.InDelta(t, e.EnergyA, r.EnergyA, 5e-4)
		assert.InDelta(t, e.EnergyB, r.EnergyB, 5e-4)
		assert.InDelta(t, tA, r.TimeA, 5e-4)
		assert.InDelta(t, e.TimeB, r.TimeB, 5e-4)
	}
}

func TestListGoodOnly(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfiguration()
	config.ListGoodOnly = true
	lw, err := NewListWriter(&buf, time.Now(), uuid.New(), config)
	require.NoError(t, err)

	require.NoError(t, lw.WriteEvent(&CalibratedEvent{EnergyA: 1, Coincident: false}))
	require.NoError(t, lw.WriteEvent(&CalibratedEvent{EnergyA: 2, Coincident: true}))
	require.NoError(t, lw.Finish(RunStats{}, nil, nil))
	assert.Equal(t, 1, lw.Written())

	records, err := ReadList(&buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2.0, records[0].EnergyA)
}

func TestCreateListFile(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "minipet")
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
	lw, filename, err := CreateListFile(prefix, start, uuid.New(), DefaultConfiguration())
	require.NoError(t, err)
	assert.Equal(t, prefix+"_20250102_030405.txt", filename)

	require.NoError(t, lw.WriteEvent(&CalibratedEvent{EnergyA: 1, EnergyB: 2}))
	require.NoError(t, lw.Finish(RunStats{Start: start, Stop: start, Total: 1}, nil, nil))

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	records, err := ReadList(f)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReadListErrors(t *testing.T) {
	_, err := ReadList(strings.NewReader("# header\n1 2 3\n"))
	require.Error(t, err)

	_, err = ReadList(strings.NewReader("1 2 x 4\n"))
	require.Error(t, err)

	records, err := ReadList(strings.NewReader("\n# only comments\n\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}
