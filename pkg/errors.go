package piconuclear

import (
	"errors"
	"fmt"
)

// ConfigurationError is returned for parameters that make processing
// impossible. It is fatal: startup fails, or the run stops at the first
// capture whose sample interval the filters cannot use.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// InputShapeError means a single capture cannot be processed with the
// configured lengths. The capture is skipped, the run continues.
type InputShapeError struct {
	Length   int
	Required int
	Reason   string
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("waveform of %d samples too short (need %d): %s", e.Length, e.Required, e.Reason)
}

// NumericalDegeneracy describes why a zero-crossing time could not be
// found. It never leaves the timing code as an error; it is only
// reported through the logger at high verbosity.
type NumericalDegeneracy struct {
	Reason string
}

func (e *NumericalDegeneracy) Error() string {
	return fmt.Sprintf("no zero crossing: %s", e.Reason)
}

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error {
	return e.Err
}

var (
	ErrFitFailed       = errors.New("peak fit did not converge")
	ErrChannelMismatch = errors.New("channel waveforms differ in length")
	ErrCapturePanic    = errors.New("capture processing panicked")
)

// IsSkippable reports whether err only affects the current capture.
func IsSkippable(err error) bool {
	var shape *InputShapeError
	return errors.As(err, &shape) || errors.Is(err, ErrChannelMismatch) || errors.Is(err, ErrCapturePanic)
}
