package piconuclear

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

type FilterParams struct {
	B         int             `json:"B"`
	L         int             `json:"L"`
	G         int             `json:"G"`
	Tau       float64         `json:"tau"`
	Threshold float64         `json:"threshold"`
	Method    AmplitudeMethod `json:"method"`
	Pileup    PileupMode      `json:"pileup"`
}

type ChannelConfig struct {
	Coupling    Coupling     `json:"coupling"`
	Range       float64      `json:"range"`
	Offset      float64      `json:"offset"`
	Filter      FilterParams `json:"filter"`
	Calibration []float64    `json:"calibration"`
	// Window holds [low, high] in calibrated energy; empty means any energy
	// is accepted on this channel.
	Window []float64 `json:"window"`
}

type TriggerConfig struct {
	Source      string    `json:"source" hdf5:"source"`
	Direction   Direction `json:"direction" hdf5:"direction"`
	Threshold   float64   `json:"threshold" hdf5:"threshold"`
	AutoTrigger int       `json:"autotrigger" hdf5:"autotrigger"`
}

type CoincidenceConfig struct {
	// DT is the largest accepted |tB - tA| in the sample interval unit.
	DT float64 `json:"dt"`
	// RequireTime turns DT into an admission criterion; otherwise it is
	// only reported.
	RequireTime bool `json:"require_time"`
}

type ZeroCrossingParams struct {
	Shift   int     `json:"shift"`
	Chi     float64 `json:"chi"`
	Falling bool    `json:"falling"`
}

type SyntheticConfig struct {
	Samples    int       `json:"samples"`
	PreTrigger int       `json:"pre_trigger"`
	Lines      []float64 `json:"lines"`
	Noise      float64   `json:"noise"`
	Background float64   `json:"background"`
	Jitter     float64   `json:"jitter"`
	Seed       uint64    `json:"seed"`
	// Quantize rounds samples to 16-bit ADC codes like a raw digitizer
	// readout.
	Quantize bool `json:"quantize"`
}

type Configuration struct {
	Timebase         int                `json:"timebase"`
	Pre              int                `json:"pre"`
	Post             int                `json:"post"`
	Captures         int                `json:"captures"`
	SampleInterval   float64            `json:"sample_interval"`
	ChRange          int                `json:"ch_range"`
	ChBins           int                `json:"ch_bins"`
	TRange           int                `json:"t_range"`
	TBins            int                `json:"t_bins"`
	ScatterBins      int                `json:"scatter_bins"`
	ChannelA         ChannelConfig      `json:"A"`
	ChannelB         ChannelConfig      `json:"B"`
	Trigger          TriggerConfig      `json:"trigger"`
	Coincidence      CoincidenceConfig  `json:"coincidence"`
	ZeroCrossing     ZeroCrossingParams `json:"zero_crossing"`
	Synthetic        SyntheticConfig    `json:"synthetic"`
	MaxEvents        int                `json:"max_events"`
	MaxGood          int                `json:"max_good"`
	MaxTime          float64            `json:"max_time"`
	Verbosity        int                `json:"verbosity"`
	Source           string             `json:"source"`
	FileIn           string             `json:"file_in"`
	FileOut          string             `json:"file_out"`
	ListGoodOnly     bool               `json:"list_good_only"`
	FileHDF5         string             `json:"file_hdf5"`
	WriteTraces      bool               `json:"write_traces"`
	WriteWaveforms   bool               `json:"write_waveforms"`
	CompressionLevel int                `json:"compression_level"`
	NoDB             bool               `json:"no_db"`
	Host             string             `json:"host"`
	User             string             `json:"user"`
	Passwd           string             `json:"pass"`
	DBName           string             `json:"dbname"`
	RunNumber        int                `json:"run_number"`
	NumWorkers       int                `json:"num_workers"`
}

var configuration = DefaultConfiguration()

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(config Configuration) {
	configuration = config
}

func defaultChannel() ChannelConfig {
	return ChannelConfig{
		Coupling: CouplingDC,
		Range:    1.0,
		Offset:   0.0,
		Filter: FilterParams{
			B:         10,
			L:         10,
			G:         10,
			Tau:       10,
			Threshold: 0.0,
			Method:    MethodTrapezoidal,
			Pileup:    PileupSingle,
		},
		Calibration: []float64{0, 1},
	}
}

// DefaultConfiguration returns the values used for every field missing in
// the configuration file.
func DefaultConfiguration() Configuration {
	return Configuration{
		Timebase:       4,
		Pre:            100,
		Post:           1000,
		Captures:       1,
		SampleInterval: 4,
		ChRange:        1024,
		ChBins:         1024,
		TRange:         100,
		TBins:          200,
		ScatterBins:    128,
		ChannelA:       defaultChannel(),
		ChannelB:       defaultChannel(),
		Trigger: TriggerConfig{
			Source:      "A",
			Direction:   DirectionRising,
			Threshold:   0.0,
			AutoTrigger: 0,
		},
		Coincidence: CoincidenceConfig{
			DT: 1000.0,
		},
		ZeroCrossing: ZeroCrossingParams{
			Shift: 10,
			Chi:   0.6,
		},
		Synthetic: SyntheticConfig{
			Samples:    1100,
			PreTrigger: 100,
			Lines:      []float64{511},
			Noise:      1.0,
			Background: 0.2,
			Jitter:     0.5,
			Seed:       1,
		},
		MaxEvents:        -1,
		MaxGood:          -1,
		MaxTime:          5.0,
		Source:           "synthetic",
		CompressionLevel: 4,
		NoDB:             true,
		Host:             "localhost",
		User:             "piconuclear",
		DBName:           "minipet",
		NumWorkers:       1,
	}
}

// Validate checks the filter parameters of a channel. The sample interval
// is needed because the pole-zero constant depends on sampleInterval/tau.
func (p FilterParams) Validate(sampleInterval float64) error {
	if p.B <= 0 {
		return &ConfigurationError{Field: "filter.B", Reason: fmt.Sprintf("must be positive, got %d", p.B)}
	}
	if p.Method != MethodTrapezoidal {
		return nil
	}
	if p.L <= 0 {
		return &ConfigurationError{Field: "filter.L", Reason: fmt.Sprintf("must be positive, got %d", p.L)}
	}
	if p.G <= 0 {
		return &ConfigurationError{Field: "filter.G", Reason: fmt.Sprintf("must be positive, got %d", p.G)}
	}
	if !(p.Tau > 0) || math.IsInf(p.Tau, 0) {
		return &ConfigurationError{Field: "filter.tau", Reason: fmt.Sprintf("must be positive and finite, got %g", p.Tau)}
	}
	if p.Threshold < 0 {
		return &ConfigurationError{Field: "filter.threshold", Reason: "must not be negative"}
	}
	if _, err := poleZeroConstant(sampleInterval, p.Tau); err != nil {
		return err
	}
	return nil
}

func (c ChannelConfig) validate(name string, sampleInterval float64) error {
	if err := c.Filter.Validate(sampleInterval); err != nil {
		if cerr, ok := err.(*ConfigurationError); ok {
			cerr.Field = name + "." + cerr.Field
		}
		return err
	}
	if err := ValidateCalibration(c.Calibration); err != nil {
		return &ConfigurationError{Field: name + ".calibration", Reason: err.Error()}
	}
	switch len(c.Window) {
	case 0:
	case 2:
		if c.Window[0] > c.Window[1] {
			return &ConfigurationError{Field: name + ".window", Reason: "low edge above high edge"}
		}
	default:
		return &ConfigurationError{Field: name + ".window", Reason: fmt.Sprintf("need [low, high], got %d values", len(c.Window))}
	}
	return nil
}

// Validate checks the whole configuration before any capture is processed.
func (c Configuration) Validate() error {
	if !(c.SampleInterval > 0) {
		return &ConfigurationError{Field: "sample_interval", Reason: "must be positive"}
	}
	if err := c.ChannelA.validate("A", c.SampleInterval); err != nil {
		return err
	}
	if err := c.ChannelB.validate("B", c.SampleInterval); err != nil {
		return err
	}
	if c.ChRange <= 0 || c.ChBins <= 0 || c.ScatterBins <= 0 {
		return &ConfigurationError{Field: "ch_range", Reason: "energy histogram range and bins must be positive"}
	}
	if c.TRange <= 0 || c.TBins <= 0 {
		return &ConfigurationError{Field: "t_range", Reason: "time histogram range and bins must be positive"}
	}
	if c.ZeroCrossing.Shift <= 0 {
		return &ConfigurationError{Field: "zero_crossing.shift", Reason: "must be positive"}
	}
	if !(c.ZeroCrossing.Chi > 0) {
		return &ConfigurationError{Field: "zero_crossing.chi", Reason: "must be positive"}
	}
	if c.Coincidence.DT < 0 {
		return &ConfigurationError{Field: "coincidence.dt", Reason: "must not be negative"}
	}
	if c.NumWorkers < 1 {
		return &ConfigurationError{Field: "num_workers", Reason: "need at least one worker"}
	}
	return nil
}

// Channel returns the configuration of channel "A" or "B".
func (c Configuration) Channel(name string) (ChannelConfig, error) {
	switch name {
	case "A", "a":
		return c.ChannelA, nil
	case "B", "b":
		return c.ChannelB, nil
	}
	return ChannelConfig{}, &ConfigurationError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", name)}
}

// LoadConfiguration reads a JSON configuration file on top of the defaults.
func LoadConfiguration(filename string) (Configuration, error) {
	config := DefaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, &ErrOpenFile{Filename: filename, Err: err}
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	return config, nil
}

func PrintConfiguration(config Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("Source: %s", config.Source), "config")
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("List good only: %t", config.ListGoodOnly), "config")
	logger.Info(fmt.Sprintf("File HDF5: %s", config.FileHDF5), "config")
	logger.Info(fmt.Sprintf("Write traces: %t", config.WriteTraces), "config")
	logger.Info(fmt.Sprintf("Write waveforms: %t", config.WriteWaveforms), "config")
	logger.Info(fmt.Sprintf("Timebase: %d", config.Timebase), "config")
	logger.Info(fmt.Sprintf("Pre/post samples: %d/%d", config.Pre, config.Post), "config")
	logger.Info(fmt.Sprintf("Sample interval: %g", config.SampleInterval), "config")
	for _, name := range []string{"A", "B"} {
		ch, _ := config.Channel(name)
		logger.Info(fmt.Sprintf("Channel %s: %s range %g offset %g", name, ch.Coupling, ch.Range, ch.Offset), "config")
		logger.Info(fmt.Sprintf("Channel %s filter: B=%d L=%d G=%d tau=%g threshold=%g method=%s pileup=%s",
			name, ch.Filter.B, ch.Filter.L, ch.Filter.G, ch.Filter.Tau, ch.Filter.Threshold, ch.Filter.Method, ch.Filter.Pileup), "config")
		logger.Info(fmt.Sprintf("Channel %s calibration: %v window: %v", name, ch.Calibration, ch.Window), "config")
		if len(ch.Window) == 2 {
			if channels, err := WindowChannels(ch.Window, ch.Calibration); err == nil {
				logger.Info(fmt.Sprintf("Channel %s window in channels: [%.1f, %.1f]", name, channels[0], channels[1]), "config")
			}
		}
	}
	logger.Info(fmt.Sprintf("Trigger: %s %s threshold %g autotrigger %d",
		config.Trigger.Source, config.Trigger.Direction, config.Trigger.Threshold, config.Trigger.AutoTrigger), "config")
	logger.Info(fmt.Sprintf("Coincidence dt: %g (required: %t)", config.Coincidence.DT, config.Coincidence.RequireTime), "config")
	logger.Info(fmt.Sprintf("Zero crossing: shift %d chi %g falling %t",
		config.ZeroCrossing.Shift, config.ZeroCrossing.Chi, config.ZeroCrossing.Falling), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Max good: %d", config.MaxGood), "config")
	logger.Info(fmt.Sprintf("Max time: %g s", config.MaxTime), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
}
