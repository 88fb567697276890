package store

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/jmbenlloch/go-hdf5"
	piconuclear "github.com/kmiernik/piconuclear_go/pkg"
)

// Writer stores events, run information and the final spectra of a run in
// an HDF5 file. It implements piconuclear.EventSink.
type Writer struct {
	File             *hdf5.File
	Filename         string
	FirstEvt         bool
	RunID            uuid.UUID
	RunNumber        int
	CompressionLevel int
	RunGroup         *hdf5.Group
	RDGroup          *hdf5.Group
	ConfigGroup      *hdf5.Group
	EventTable       *hdf5.Dataset
	RunInfoTable     *hdf5.Dataset
	TriggerTable     *hdf5.Dataset
	FilterTable      *hdf5.Dataset
	TracesA          *hdf5.Dataset
	TracesB          *hdf5.Dataset
	WaveformsA       *hdf5.Dataset
	WaveformsB       *hdf5.Dataset
	EvtCounter       int
	tracesCounter    int
	waveformsCounter int
	traceSamples     int
	waveformSamples  int
}

func NewWriter(filename string, config piconuclear.Configuration, runID uuid.UUID) (*Writer, error) {
	// Set string size for HDF5
	hdf5.SetStringLength(STRLEN)

	logger := piconuclear.GetLogger()
	if config.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Creating file: %s", filename), "hdf5writer")
	}

	var err error
	writer := &Writer{
		Filename:         filename,
		RunID:            runID,
		RunNumber:        config.RunNumber,
		CompressionLevel: config.CompressionLevel,
	}
	writer.File, err = openFile(filename)
	if err != nil {
		return nil, &piconuclear.ErrOpenFile{Filename: filename, Err: err}
	}
	if writer.RunGroup, err = createGroup(writer.File, "Run"); err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	if writer.RDGroup, err = createGroup(writer.File, "RD"); err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	if writer.ConfigGroup, err = createGroup(writer.File, "Config"); err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	if writer.EventTable, err = createTable(writer.RunGroup, "events", EventHDF5{}, writer.CompressionLevel); err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	if writer.RunInfoTable, err = createTable(writer.RunGroup, "runInfo", RunInfoHDF5{}, writer.CompressionLevel); err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	if writer.TriggerTable, err = createTable(writer.ConfigGroup, "trigger", ParamsHDF5{}, writer.CompressionLevel); err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	if writer.FilterTable, err = createTable(writer.ConfigGroup, "filters", ParamsHDF5{}, writer.CompressionLevel); err != nil {
		return nil, errors.Join(err, writer.Close())
	}

	if err := writer.writeTriggerConfiguration(config.Trigger); err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	filters := append(parameterEntries("A.", config.ChannelA.Filter), parameterEntries("B.", config.ChannelB.Filter)...)
	if err := writeArrayToTable(writer.FilterTable, &filters, 0); err != nil {
		return nil, errors.Join(fmt.Errorf("writing filter parameters: %w", err), writer.Close())
	}
	return writer, nil
}

func eventEntry(event *piconuclear.CalibratedEvent) EventHDF5 {
	return EventHDF5{
		capture:    event.Capture,
		amplitudeA: event.AmplitudeA,
		amplitudeB: event.AmplitudeB,
		energyA:    event.EnergyA,
		energyB:    event.EnergyB,
		timeA:      event.TimeA,
		timeB:      event.TimeB,
		timeDiff:   event.TimeDiff,
		peaksA:     int32(event.PeaksA),
		peaksB:     int32(event.PeaksB),
		timeAOK:    boolToInt8(event.TimeAOK),
		timeBOK:    boolToInt8(event.TimeBOK),
		coincident: boolToInt8(event.Coincident),
	}
}

func (w *Writer) WriteEvent(event *piconuclear.CalibratedEvent) error {
	if !w.FirstEvt {
		if len(event.TraceA) > 0 {
			w.traceSamples = len(event.TraceA)
			var err error
			if w.TracesA, err = create2dArray(w.RDGroup, "traceA", w.traceSamples, w.CompressionLevel); err != nil {
				return err
			}
			if w.TracesB, err = create2dArray(w.RDGroup, "traceB", w.traceSamples, w.CompressionLevel); err != nil {
				return err
			}
		}
		if len(event.WaveformA) > 0 {
			w.waveformSamples = len(event.WaveformA)
			var err error
			if w.WaveformsA, err = create2dArray(w.RDGroup, "waveformA", w.waveformSamples, w.CompressionLevel); err != nil {
				return err
			}
			if w.WaveformsB, err = create2dArray(w.RDGroup, "waveformB", w.waveformSamples, w.CompressionLevel); err != nil {
				return err
			}
		}
		w.FirstEvt = true
	}

	if err := writeEntryToTable(w.EventTable, eventEntry(event), w.EvtCounter); err != nil {
		return fmt.Errorf("writing event table: %w", err)
	}
	w.EvtCounter++

	// Rows of a different length than the first event cannot be stored
	if w.TracesA != nil && len(event.TraceA) == w.traceSamples && len(event.TraceB) == w.traceSamples {
		traceA := []float64(event.TraceA)
		traceB := []float64(event.TraceB)
		if err := write2dArray(w.TracesA, &traceA, w.tracesCounter, w.traceSamples); err != nil {
			return fmt.Errorf("writing trace A: %w", err)
		}
		if err := write2dArray(w.TracesB, &traceB, w.tracesCounter, w.traceSamples); err != nil {
			return fmt.Errorf("writing trace B: %w", err)
		}
		w.tracesCounter++
	}
	if w.WaveformsA != nil && len(event.WaveformA) == w.waveformSamples && len(event.WaveformB) == w.waveformSamples {
		waveformA := []float64(event.WaveformA)
		waveformB := []float64(event.WaveformB)
		if err := write2dArray(w.WaveformsA, &waveformA, w.waveformsCounter, w.waveformSamples); err != nil {
			return fmt.Errorf("writing waveform A: %w", err)
		}
		if err := write2dArray(w.WaveformsB, &waveformB, w.waveformsCounter, w.waveformSamples); err != nil {
			return fmt.Errorf("writing waveform B: %w", err)
		}
		w.waveformsCounter++
	}
	return nil
}

func (w *Writer) writeHistogramSet(name string, set *piconuclear.HistogramSet) error {
	group, err := createGroup(w.File, name)
	if err != nil {
		return err
	}
	defer group.Close()

	histograms := []struct {
		name string
		h    *piconuclear.Histogram
	}{
		{"dt", set.TimeDiff},
		{"energyA", set.EnergyA},
		{"energyB", set.EnergyB},
	}
	for _, entry := range histograms {
		counts := entry.h.Counts
		if err := writeFixedArray(group, entry.name, []uint{uint(len(counts))}, counts); err != nil {
			return err
		}
		edges := entry.h.Edges()
		if err := writeFixedArray(group, entry.name+"_edges", []uint{uint(len(edges))}, edges); err != nil {
			return err
		}
	}

	nx := len(set.Scatter.Counts)
	ny := len(set.Scatter.Y.Counts)
	flat := make([]int64, 0, nx*ny)
	for _, row := range set.Scatter.Counts {
		flat = append(flat, row...)
	}
	return writeFixedArray(group, "scatter", []uint{uint(nx), uint(ny)}, flat)
}

// Finish writes the run information and both spectra sets, then closes
// the file.
func (w *Writer) Finish(stats piconuclear.RunStats, all, good *piconuclear.HistogramSet) error {
	var errs []error
	info := RunInfoHDF5{
		run_number: int32(w.RunNumber),
		run_id:     convertUUID(w.RunID.String()),
		start:      stats.Start.Unix(),
		stop:       stats.Stop.Unix(),
		captures:   int64(stats.Captures),
		total:      int64(stats.Total),
		good:       int64(stats.Good),
		skipped:    int64(stats.Skipped),
		no_timing:  int64(stats.NoTiming),
	}
	if err := writeEntryToTable(w.RunInfoTable, info, 0); err != nil {
		errs = append(errs, fmt.Errorf("error writing run info: %w", err))
	}
	if all != nil {
		if err := w.writeHistogramSet("All", all); err != nil {
			errs = append(errs, fmt.Errorf("error writing histograms: %w", err))
		}
	}
	if good != nil {
		if err := w.writeHistogramSet("Good", good); err != nil {
			errs = append(errs, fmt.Errorf("error writing good histograms: %w", err))
		}
	}
	if err := w.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (w *Writer) Close() error {
	if piconuclear.GetConfiguration().Verbosity > 0 {
		piconuclear.GetLogger().Info(fmt.Sprintf("Closing file hdf writer %s", w.Filename), "hdf5writer")
	}
	var errs []error

	datasets := []struct {
		name string
		dset *hdf5.Dataset
	}{
		{"event table", w.EventTable},
		{"run info table", w.RunInfoTable},
		{"trigger table", w.TriggerTable},
		{"filter table", w.FilterTable},
		{"traces A", w.TracesA},
		{"traces B", w.TracesB},
		{"waveforms A", w.WaveformsA},
		{"waveforms B", w.WaveformsB},
	}
	for _, d := range datasets {
		if d.dset == nil {
			continue
		}
		if err := d.dset.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", d.name, err))
		}
	}

	groups := []struct {
		name  string
		group *hdf5.Group
	}{
		{"run group", w.RunGroup},
		{"RD group", w.RDGroup},
		{"config group", w.ConfigGroup},
	}
	for _, g := range groups {
		if g.group == nil {
			continue
		}
		if err := g.group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", g.name, err))
		}
	}

	if w.File != nil {
		if err := w.File.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing file: %w", err))
		}
		w.File = nil
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (w *Writer) writeTriggerConfiguration(params piconuclear.TriggerConfig) error {
	entries := parameterEntries("", params)
	if err := writeArrayToTable(w.TriggerTable, &entries, 0); err != nil {
		return fmt.Errorf("writing trigger configuration: %w", err)
	}
	return nil
}

// parameterEntries flattens the scalar fields of a struct into name/value
// rows, named by the hdf5 tag or else the json tag.
func parameterEntries(prefix string, params any) []ParamsHDF5 {
	value := reflect.ValueOf(params)
	t := value.Type()
	n := t.NumField()
	entries := make([]ParamsHDF5, 0, n)

	for i := 0; i < n; i++ {
		f := t.Field(i)
		paramName := f.Tag.Get("hdf5")
		if paramName == "" {
			paramName, _, _ = strings.Cut(f.Tag.Get("json"), ",")
		}
		if paramName == "" {
			paramName = f.Name
		}
		entry := ParamsHDF5{paramStr: convertToHdf5String(prefix + paramName)}
		field := value.Field(i)

		// Write only single-value fields
		switch {
		case field.Type().Implements(reflect.TypeOf((*fmt.Stringer)(nil)).Elem()):
			entry.strValue = convertToHdf5String(field.Interface().(fmt.Stringer).String())
			if field.CanInt() {
				entry.value = float64(field.Int())
			}
		case field.CanInt():
			entry.value = float64(field.Int())
		case field.CanUint():
			entry.value = float64(field.Uint())
		case field.CanFloat():
			entry.value = field.Float()
		case field.Kind() == reflect.Bool:
			if field.Bool() {
				entry.value = 1
			}
		case field.Kind() == reflect.String:
			entry.strValue = convertToHdf5String(field.String())
		default:
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
