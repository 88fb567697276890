package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	piconuclear "github.com/kmiernik/piconuclear_go/pkg"
)

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

// CalibrationEntry is one row of the Calibration table. Coefficients are
// stored as a comma or space separated list, lowest order first.
type CalibrationEntry struct {
	Channel      string          `db:"Channel"`
	Coefficients string          `db:"Coefficients"`
	WindowLow    sql.NullFloat64 `db:"WindowLow"`
	WindowHigh   sql.NullFloat64 `db:"WindowHigh"`
}

// RunSummary is the row inserted in the Runs table when a run ends.
type RunSummary struct {
	RunNumber int     `db:"RunNumber"`
	RunID     string  `db:"RunID"`
	Start     string  `db:"Start"`
	Stop      string  `db:"Stop"`
	Duration  float64 `db:"Duration"`
	Captures  int     `db:"Captures"`
	Total     int     `db:"Total"`
	Good      int     `db:"Good"`
	Skipped   int     `db:"Skipped"`
	ListFile  string  `db:"ListFile"`
}

func parseCoefficients(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	coeffs := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coefficient %q: %w", field, err)
		}
		coeffs = append(coeffs, v)
	}
	if err := piconuclear.ValidateCalibration(coeffs); err != nil {
		return nil, err
	}
	return coeffs, nil
}

func getCalibrationFromDB(db *sqlx.DB, runNumber int) ([]CalibrationEntry, error) {
	query := "SELECT Channel, Coefficients, WindowLow, WindowHigh FROM Calibration WHERE MinRun <= %d and MaxRun >= %d ORDER BY Channel"
	query = fmt.Sprintf(query, runNumber, runNumber)

	verbosity := piconuclear.GetConfiguration().Verbosity
	logger := piconuclear.GetLogger()
	if verbosity > 0 {
		logger.Info("Reading calibration from database", "database")
	}
	if verbosity > 2 {
		message := fmt.Sprintf("Query: %s", query)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query)
	if err != nil {
		errMessage := fmt.Errorf("error querying database: %w", err)
		return nil, errMessage
	}
	defer rows.Close()

	entries := make([]CalibrationEntry, 0, 2)
	for rows.Next() {
		result := CalibrationEntry{}
		err := rows.StructScan(&result)
		if err != nil {
			errMessage := fmt.Errorf("error scanning DB row: %w", err)
			return nil, errMessage
		}
		entries = append(entries, result)
	}
	return entries, rows.Err()
}

// applyCalibration overrides the calibration and window of the channels
// found in entries. Channels missing from the table keep their values.
func applyCalibration(config *piconuclear.Configuration, entries []CalibrationEntry) error {
	for _, entry := range entries {
		var channel *piconuclear.ChannelConfig
		switch strings.ToUpper(entry.Channel) {
		case "A":
			channel = &config.ChannelA
		case "B":
			channel = &config.ChannelB
		default:
			return fmt.Errorf("unknown channel %q in calibration table", entry.Channel)
		}
		coeffs, err := parseCoefficients(entry.Coefficients)
		if err != nil {
			return fmt.Errorf("channel %s: %w", entry.Channel, err)
		}
		channel.Calibration = coeffs
		if entry.WindowLow.Valid && entry.WindowHigh.Valid {
			channel.Window = []float64{entry.WindowLow.Float64, entry.WindowHigh.Float64}
		}
	}
	return nil
}

// LoadCalibration reads the calibration valid for runNumber into config.
func LoadCalibration(dbConn *sqlx.DB, runNumber int, config *piconuclear.Configuration) error {
	entries, err := getCalibrationFromDB(dbConn, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting calibration from database: %w", err)
		piconuclear.GetLogger().Error(errMessage.Error())
		return errMessage
	}
	return applyCalibration(config, entries)
}

func NewRunSummary(runNumber int, runID string, stats piconuclear.RunStats, listFile string) RunSummary {
	const layout = "2006-01-02 15:04:05"
	return RunSummary{
		RunNumber: runNumber,
		RunID:     runID,
		Start:     stats.Start.Format(layout),
		Stop:      stats.Stop.Format(layout),
		Duration:  stats.Elapsed().Seconds(),
		Captures:  stats.Captures,
		Total:     stats.Total,
		Good:      stats.Good,
		Skipped:   stats.Skipped,
		ListFile:  listFile,
	}
}

func InsertRunSummary(dbConn *sqlx.DB, summary RunSummary) error {
	query := `INSERT INTO Runs (RunNumber, RunID, Start, Stop, Duration, Captures, Total, Good, Skipped, ListFile)
		VALUES (:RunNumber, :RunID, :Start, :Stop, :Duration, :Captures, :Total, :Good, :Skipped, :ListFile)`
	if _, err := dbConn.NamedExec(query, summary); err != nil {
		return fmt.Errorf("error inserting run summary: %w", err)
	}
	return nil
}
