package piconuclear

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PileupMode selects how the trapezoidal filter output is turned into
// amplitudes.
type PileupMode int

const (
	PileupSingle PileupMode = iota
	PileupMulti
)

var pileupModeStrings = []string{
	"single",
	"multi",
}

func (m PileupMode) String() string {
	if m < PileupSingle || m > PileupMulti {
		return "UNKNOWN"
	}
	return pileupModeStrings[m]
}

func (m PileupMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *PileupMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	// "max" and "all" are the names used by older configuration files
	switch strings.ToLower(s) {
	case "max":
		s = "single"
	case "all":
		s = "multi"
	}
	for i, v := range pileupModeStrings {
		if v == strings.ToLower(s) {
			*m = PileupMode(i)
			return nil
		}
	}
	return fmt.Errorf("invalid PileupMode: %s", s)
}

// AmplitudeMethod selects the amplitude estimator of a channel.
type AmplitudeMethod int

const (
	MethodTrapezoidal AmplitudeMethod = iota
	MethodSum
	MethodMax
)

var amplitudeMethodStrings = []string{
	"trapezoidal",
	"sum",
	"max",
}

func (m AmplitudeMethod) String() string {
	if m < MethodTrapezoidal || m > MethodMax {
		return "UNKNOWN"
	}
	return amplitudeMethodStrings[m]
}

func (m AmplitudeMethod) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *AmplitudeMethod) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, v := range amplitudeMethodStrings {
		if v == strings.ToLower(s) {
			*m = AmplitudeMethod(i)
			return nil
		}
	}
	return fmt.Errorf("invalid AmplitudeMethod: %s", s)
}

// Direction is the trigger edge direction of the digitizer.
type Direction int

const (
	DirectionRising Direction = iota
	DirectionFalling
)

var directionStrings = []string{
	"RISING",
	"FALLING",
}

func (d Direction) String() string {
	if d < DirectionRising || d > DirectionFalling {
		return "UNKNOWN"
	}
	return directionStrings[d]
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, v := range directionStrings {
		if v == strings.ToUpper(s) {
			*d = Direction(i)
			return nil
		}
	}
	return fmt.Errorf("invalid Direction: %s", s)
}

// Coupling is the input coupling of a digitizer channel.
type Coupling int

const (
	CouplingDC Coupling = iota
	CouplingAC
)

var couplingStrings = []string{
	"DC",
	"AC",
}

func (c Coupling) String() string {
	if c < CouplingDC || c > CouplingAC {
		return "UNKNOWN"
	}
	return couplingStrings[c]
}

func (c Coupling) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Coupling) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, v := range couplingStrings {
		if v == strings.ToUpper(s) {
			*c = Coupling(i)
			return nil
		}
	}
	return fmt.Errorf("invalid Coupling: %s", s)
}
