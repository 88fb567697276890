package piconuclear

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	listComment    = "#"
	listTimeLayout = "2006-01-02 15:04:05"
	listDigits     = 3
)

// ListRecord is one row of a list-mode file.
type ListRecord struct {
	EnergyA float64
	EnergyB float64
	TimeA   float64
	TimeB   float64
}

// ListFileName builds "<prefix>_YYYYMMDD_HHMMSS.txt".
func ListFileName(prefix string, start time.Time) string {
	return fmt.Sprintf("%s_%s.txt", prefix, start.Format("20060102_150405"))
}

// ListWriter streams events as whitespace separated text. Header and footer
// lines start with '#' so the body can be loaded by any column reader.
type ListWriter struct {
	out      *bufio.Writer
	closer   io.Closer
	RunID    uuid.UUID
	GoodOnly bool
	start    time.Time
	written  int
}

// CreateListFile opens <prefix>_YYYYMMDD_HHMMSS.txt and writes its header.
func CreateListFile(prefix string, start time.Time, runID uuid.UUID, config Configuration) (*ListWriter, string, error) {
	filename := ListFileName(prefix, start)
	f, err := os.Create(filename)
	if err != nil {
		return nil, filename, &ErrOpenFile{Filename: filename, Err: err}
	}
	lw, err := NewListWriter(f, start, runID, config)
	if err != nil {
		f.Close()
		return nil, filename, err
	}
	lw.closer = f
	return lw, filename, nil
}

func NewListWriter(w io.Writer, start time.Time, runID uuid.UUID, config Configuration) (*ListWriter, error) {
	lw := &ListWriter{
		out:      bufio.NewWriter(w),
		RunID:    runID,
		GoodOnly: config.ListGoodOnly,
		start:    start,
	}
	// credentials stay out of data files
	config.Passwd = ""
	dump, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	lw.comment("Run %s", lw.RunID)
	lw.comment("Start at %s", start.Format(listTimeLayout))
	lw.comment("Config:")
	for _, line := range strings.Split(string(dump), "\n") {
		lw.comment("  %s", line)
	}
	lw.comment("EA EB tA tB")
	return lw, lw.out.Flush()
}

func (lw *ListWriter) comment(format string, args ...any) {
	fmt.Fprintf(lw.out, listComment+" "+format+"\n", args...)
}

// FormatValue prints v with three decimals. Non-finite values cannot be
// represented as decimals and are printed by strconv.
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', listDigits, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(listDigits)
}

// FormatRecord renders one event row. Missing times are written as 0.
func FormatRecord(e *CalibratedEvent) string {
	tA, tB := 0.0, 0.0
	if e.TimeAOK {
		tA = e.TimeA
	}
	if e.TimeBOK {
		tB = e.TimeB
	}
	return strings.Join([]string{
		FormatValue(e.EnergyA),
		FormatValue(e.EnergyB),
		FormatValue(tA),
		FormatValue(tB),
	}, " ")
}

func (lw *ListWriter) WriteEvent(e *CalibratedEvent) error {
	if lw.GoodOnly && !e.Coincident {
		return nil
	}
	if _, err := lw.out.WriteString(FormatRecord(e) + "\n"); err != nil {
		return err
	}
	lw.written++
	return nil
}

func (lw *ListWriter) Written() int {
	return lw.written
}

// Finish writes the footer with the run totals and closes the file.
func (lw *ListWriter) Finish(stats RunStats, all, good *HistogramSet) error {
	if stats.Start.IsZero() {
		stats.Start = lw.start
	}
	if stats.Stop.IsZero() {
		stats.Stop = time.Now()
	}
	lw.comment("Stop at %s", stats.Stop.Format(listTimeLayout))
	lw.comment("Total running time %.3f s", stats.Stop.Sub(stats.Start).Seconds())
	lw.comment("Total counts %d", stats.Total)
	lw.comment("Good counts %d", stats.Good)
	lw.comment("Skipped captures %d", stats.Skipped)

	var errs []error
	if err := lw.out.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing list file: %w", err))
	}
	if lw.closer != nil {
		if err := lw.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing list file: %w", err))
		}
	}
	return errors.Join(errs...)
}

func parseValue(field string) (float64, error) {
	d, err := decimal.NewFromString(field)
	if err != nil {
		return strconv.ParseFloat(field, 64)
	}
	v, _ := d.Float64()
	return v, nil
}

// ReadList parses a list-mode file, skipping comments and blank lines.
func ReadList(r io.Reader) ([]ListRecord, error) {
	var records []ListRecord
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, listComment) {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 4 {
			return records, fmt.Errorf("line %d: expected 4 columns, got %d", line, len(fields))
		}
		var values [4]float64
		for i, field := range fields {
			v, err := parseValue(field)
			if err != nil {
				return records, fmt.Errorf("line %d column %d: %w", line, i+1, err)
			}
			values[i] = v
		}
		records = append(records, ListRecord{
			EnergyA: values[0],
			EnergyB: values[1],
			TimeA:   values[2],
			TimeB:   values[3],
		})
	}
	return records, scanner.Err()
}
