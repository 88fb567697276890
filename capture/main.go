package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	piconuclear "github.com/kmiernik/piconuclear_go/pkg"
)

var configuration piconuclear.Configuration

var logger piconuclear.ConsoleLogger

func init() {
	logger = piconuclear.NewConsoleLogger(slog.LevelDebug)
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	save := flag.String("save", "", "Name of output file with waveforms (optional)")
	filter := flag.Bool("f", false, "Apply trapezoidal filter and zero crossing to each capture")
	flag.Parse()

	var err error
	configuration, err = loadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	piconuclear.SetConfiguration(configuration)
	piconuclear.SetLogger(logger)
	if configuration.Verbosity > 0 {
		piconuclear.PrintConfiguration(configuration, logger)
	}

	captures, err := collect(context.Background(), configuration)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	if len(captures) == 0 {
		logger.Error("No captures collected")
		os.Exit(1)
	}

	interval := captures[0].SampleInterval
	unit, scale := timeUnit(interval)
	logger.Info(fmt.Sprintf("Interval is %g ns (%g %s)", interval, interval/scale, unit), "capture")
	logger.Info(fmt.Sprintf("Range is %g %s", float64(len(captures[0].A))*interval/scale, unit), "capture")

	if *save != "" {
		filename := fmt.Sprintf("%s.txt", *save)
		if err := saveCaptures(filename, captures); err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("Saved %d captures to %s", len(captures), filename), "capture")
	}

	if *filter {
		for _, c := range captures {
			describe(c, scale, unit)
		}
	}
}

// loadConfiguration returns the defaults when filename is empty. Either way
// the result is validated before any capture is taken.
func loadConfiguration(filename string) (piconuclear.Configuration, error) {
	config := piconuclear.DefaultConfiguration()
	if filename != "" {
		var err error
		if config, err = piconuclear.LoadConfiguration(filename); err != nil {
			return config, err
		}
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// collect reads the configured number of captures from the source.
func collect(ctx context.Context, config piconuclear.Configuration) ([]piconuclear.Capture, error) {
	var source piconuclear.Source
	switch config.Source {
	case "replay", "file", "demo":
		src, err := piconuclear.OpenReplaySource(config.FileIn)
		if err != nil {
			return nil, err
		}
		source = src
	default:
		src, err := piconuclear.NewSyntheticSource(config)
		if err != nil {
			return nil, err
		}
		source = src
	}

	n := config.Captures
	if n <= 0 {
		n = 1
	}
	captures := make([]piconuclear.Capture, 0, n)
	for len(captures) < n {
		c, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return captures, fmt.Errorf("reading capture: %w", err)
		}
		captures = append(captures, c)
	}
	return captures, nil
}

func saveCaptures(filename string, captures []piconuclear.Capture) error {
	f, err := os.Create(filename)
	if err != nil {
		return &piconuclear.ErrOpenFile{Filename: filename, Err: err}
	}
	if err := piconuclear.WriteCaptures(f, captures); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return f.Close()
}

func timeUnit(interval float64) (string, float64) {
	switch {
	case interval >= 1000:
		return "ms", 1000000
	case interval >= 10:
		return "us", 1000
	}
	return "ns", 1
}

func describe(c piconuclear.Capture, scale float64, unit string) {
	for _, name := range []string{"A", "B"} {
		channel, _ := configuration.Channel(name)
		v := c.A
		if name == "B" {
			v = c.B
		}
		peaks, _, err := piconuclear.Trapezoidal(v, channel.Filter, c.SampleInterval, channel.Filter.Pileup)
		if err != nil {
			logger.Error(fmt.Errorf("capture %d channel %s: %w", c.Count, name, err).Error())
			continue
		}
		t, ok := piconuclear.ZeroCrossing(v, channel.Filter.B, configuration.ZeroCrossing.Shift,
			configuration.ZeroCrossing.Chi, configuration.ZeroCrossing.Falling)
		timing := "no crossing"
		if ok {
			timing = fmt.Sprintf("t = %.1f %s", t*c.SampleInterval/scale, unit)
		}
		for _, p := range peaks {
			logger.Info(fmt.Sprintf("capture %d %s: A = %.1f at %d, %s", c.Count, name, p.Value, p.Index, timing), "capture")
		}
	}
}
