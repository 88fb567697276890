package piconuclear

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
)

// Source delivers synchronized captures. Next returns io.EOF when the
// source is exhausted.
type Source interface {
	Next(ctx context.Context) (Capture, error)
}

// ReplaySource plays back captures saved by the capture command: one row
// per sample holding the time followed by k columns of channel A and k
// columns of channel B.
type ReplaySource struct {
	captures []Capture
	position int
	count    uint64
	// Loop restarts from the first capture when the file is exhausted.
	Loop bool
}

func OpenReplaySource(filename string) (*ReplaySource, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	defer f.Close()
	src, err := ReadReplay(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return src, nil
}

// ReadReplay parses the capture text layout into memory.
func ReadReplay(r io.Reader) (*ReplaySource, error) {
	var rows [][]float64
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, listComment) {
			continue
		}
		fields := strings.Fields(text)
		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+1, err)
			}
			row[i] = v
		}
		if len(rows) > 0 && len(row) != len(rows[0]) {
			return nil, fmt.Errorf("line %d: %d columns, expected %d", line, len(row), len(rows[0]))
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no samples")
	}
	columns := len(rows[0])
	if columns < 3 || (columns-1)%2 != 0 {
		return nil, fmt.Errorf("%d columns do not form time plus equal A and B captures", columns)
	}

	interval := 0.0
	if len(rows) > 1 {
		interval = rows[1][0] - rows[0][0]
	}
	k := (columns - 1) / 2
	src := &ReplaySource{captures: make([]Capture, k)}
	for c := 0; c < k; c++ {
		a := make(Waveform, len(rows))
		b := make(Waveform, len(rows))
		for i, row := range rows {
			a[i] = row[1+c]
			b[i] = row[1+k+c]
		}
		src.captures[c] = Capture{A: a, B: b, SampleInterval: interval}
	}
	return src, nil
}

func (s *ReplaySource) Len() int {
	return len(s.captures)
}

func (s *ReplaySource) Next(ctx context.Context) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return Capture{}, err
	}
	if s.position >= len(s.captures) {
		if !s.Loop || len(s.captures) == 0 {
			return Capture{}, io.EOF
		}
		s.position = 0
	}
	capture := s.captures[s.position]
	capture.Count = s.count
	s.position++
	s.count++
	return capture, nil
}

// SyntheticSource generates pairs of exponential pulses on a noisy
// baseline. A fraction Background of the captures carries uncorrelated
// amplitudes; the others draw both amplitudes from the same line.
type SyntheticSource struct {
	config   SyntheticConfig
	tauA     float64
	tauB     float64
	interval float64
	rng      *rand.Rand
	count    uint64
	// Limit stops the source after this many captures when positive.
	Limit int
}

func NewSyntheticSource(config Configuration) (*SyntheticSource, error) {
	sc := config.Synthetic
	if sc.Samples <= 0 || sc.PreTrigger < 0 || sc.PreTrigger >= sc.Samples {
		return nil, &ConfigurationError{Field: "synthetic.samples", Reason: fmt.Sprintf("pre-trigger %d outside %d samples", sc.PreTrigger, sc.Samples)}
	}
	if len(sc.Lines) == 0 {
		return nil, &ConfigurationError{Field: "synthetic.lines", Reason: "need at least one line"}
	}
	if !(config.SampleInterval > 0) {
		return nil, &ConfigurationError{Field: "sample_interval", Reason: "must be positive"}
	}
	return &SyntheticSource{
		config:   sc,
		tauA:     config.ChannelA.Filter.Tau,
		tauB:     config.ChannelB.Filter.Tau,
		interval: config.SampleInterval,
		rng:      rand.New(rand.NewPCG(sc.Seed, sc.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// pulse fills an exponential decay starting at the fractional sample
// start. The onset height is scaled so that a trapezoidal filter with the
// same tau measures amplitude.
func (s *SyntheticSource) pulse(amplitude, start, tau float64) Waveform {
	w := make(Waveform, s.config.Samples)
	decay := tau / s.interval
	height := amplitude * (1 - math.Exp(-1/decay))
	for i := range w {
		w[i] = s.config.Noise * s.rng.NormFloat64()
		if t := float64(i) - start; t >= 0 && decay > 0 {
			w[i] += height * math.Exp(-t/decay)
		}
	}
	if s.config.Quantize {
		return NewWaveform(adcCodes(w))
	}
	return w
}

// adcCodes rounds samples to signed 16-bit codes, saturating at the ends
// of the range.
func adcCodes(w Waveform) []int16 {
	codes := make([]int16, len(w))
	for i, v := range w {
		codes[i] = int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
	}
	return codes
}

func (s *SyntheticSource) Next(ctx context.Context) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return Capture{}, err
	}
	if s.Limit > 0 && s.count >= uint64(s.Limit) {
		return Capture{}, io.EOF
	}

	line := s.config.Lines[s.rng.IntN(len(s.config.Lines))]
	ampA, ampB := line, line
	if s.rng.Float64() < s.config.Background {
		ampA = line * s.rng.Float64()
		ampB = line * s.rng.Float64()
	}
	start := float64(s.config.PreTrigger)
	startA := start + s.config.Jitter*s.rng.NormFloat64()
	startB := start + s.config.Jitter*s.rng.NormFloat64()

	capture := Capture{
		Count:          s.count,
		A:              s.pulse(ampA, startA, s.tauA),
		B:              s.pulse(ampB, startB, s.tauB),
		SampleInterval: s.interval,
	}
	s.count++
	return capture, nil
}

// WriteCaptures saves captures in the layout read by ReadReplay. All
// captures must have the same length.
func WriteCaptures(w io.Writer, captures []Capture) error {
	if len(captures) == 0 {
		return fmt.Errorf("no captures to write")
	}
	n := len(captures[0].A)
	for _, c := range captures {
		if len(c.A) != n || len(c.B) != n {
			return fmt.Errorf("capture %d: %w", c.Count, ErrChannelMismatch)
		}
	}
	out := bufio.NewWriter(w)
	interval := captures[0].SampleInterval
	row := make([]string, 0, 1+2*len(captures))
	for i := 0; i < n; i++ {
		row = row[:0]
		row = append(row, FormatValue(float64(i)*interval))
		for _, c := range captures {
			row = append(row, FormatValue(c.A[i]))
		}
		for _, c := range captures {
			row = append(row, FormatValue(c.B[i]))
		}
		if _, err := out.WriteString(strings.Join(row, " ") + "\n"); err != nil {
			return err
		}
	}
	return out.Flush()
}
