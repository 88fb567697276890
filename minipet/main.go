package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	sqlx "github.com/jmoiron/sqlx"
	piconuclear "github.com/kmiernik/piconuclear_go/pkg"
	"github.com/kmiernik/piconuclear_go/pkg/store"
)

var dbConn *sqlx.DB
var configuration piconuclear.Configuration

var (
	logger         piconuclear.ConsoleLogger
	VerbosityLevel int
)

func init() {
	logger = piconuclear.NewConsoleLogger(slog.LevelDebug)
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	listPrefix := flag.String("list", "", "List mode file prefix (overrides file_out)")
	maxTime := flag.Float64("t", -1, "Maximum run time in seconds")
	maxGood := flag.Int("n", -1, "Number of good events to collect; with -t the first limit reached stops the run")
	verbose := flag.Bool("v", false, "Print collected events")
	flag.Parse()

	var err error
	configuration = piconuclear.DefaultConfiguration()
	if *configFilename != "" {
		configuration, err = piconuclear.LoadConfiguration(*configFilename)
	}
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	applyFlags(&configuration, *listPrefix, *maxTime, *maxGood)

	piconuclear.SetConfiguration(configuration)
	piconuclear.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		piconuclear.PrintConfiguration(configuration, logger)
	}

	if !configuration.NoDB {
		dbConn, err = store.ConnectToDatabase(configuration.User, configuration.Passwd, configuration.Host, configuration.DBName)
		if err != nil {
			message := fmt.Errorf("Error connection to database: %w", err)
			logger.Error(message.Error())
			os.Exit(1)
		}
		defer dbConn.Close()

		if err := store.LoadCalibration(dbConn, configuration.RunNumber, &configuration); err != nil {
			message := fmt.Errorf("Error loading calibration: %w", err)
			logger.Error(message.Error())
			os.Exit(1)
		}
		piconuclear.SetConfiguration(configuration)
	}

	if err := run(*verbose); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

// applyFlags copies the command line limits into the configuration. With
// neither a time nor an event limit the run stops after five seconds.
func applyFlags(config *piconuclear.Configuration, listPrefix string, maxTime float64, maxGood int) {
	if listPrefix != "" {
		config.FileOut = listPrefix
	}
	if maxTime > 0 || maxGood > 0 {
		config.MaxTime = maxTime
		config.MaxGood = maxGood
	}
	if config.MaxTime <= 0 && config.MaxGood <= 0 && config.MaxEvents <= 0 {
		config.MaxTime = 5.0
	}
}

func run(verbose bool) error {
	source, err := openSource(configuration)
	if err != nil {
		return fmt.Errorf("Error opening source: %w", err)
	}

	runID := uuid.New()
	var sinks []piconuclear.EventSink
	var listFile string
	r, err := piconuclear.NewRun(configuration, source)
	if err != nil {
		return fmt.Errorf("Error configuring run: %w", err)
	}
	if configuration.FileOut != "" {
		listWriter, filename, err := piconuclear.CreateListFile(configuration.FileOut, time.Now(), runID, configuration)
		if err != nil {
			return fmt.Errorf("Error creating list file: %w", err)
		}
		listFile = filename
		sinks = append(sinks, listWriter)
		if VerbosityLevel > 0 {
			logger.Info(fmt.Sprintf("Writing list mode data to %s", filename), "main")
		}
	}
	if configuration.FileHDF5 != "" {
		writer, err := store.NewWriter(configuration.FileHDF5, configuration, runID)
		if err != nil {
			return errors.Join(fmt.Errorf("Error creating HDF5 file: %w", err), closeSinks(sinks))
		}
		sinks = append(sinks, writer)
	}
	if verbose {
		sinks = append(sinks, eventPrinter{logger: logger})
	}
	r.Sinks = sinks

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(fmt.Sprintf("Start run %s", runID), "main")
	runErr := r.Execute(ctx)
	if ctx.Err() != nil {
		logger.Info("Stop", "main")
	}
	closeErr := r.Close()

	printSummary(r)

	if dbConn != nil {
		summary := store.NewRunSummary(configuration.RunNumber, runID.String(), r.Stats, listFile)
		if err := store.InsertRunSummary(dbConn, summary); err != nil {
			logger.Error(err.Error())
		}
	}
	return errors.Join(runErr, closeErr)
}

func closeSinks(sinks []piconuclear.EventSink) error {
	var errs []error
	for _, sink := range sinks {
		errs = append(errs, sink.Finish(piconuclear.RunStats{}, nil, nil))
	}
	return errors.Join(errs...)
}
