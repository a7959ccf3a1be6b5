// Package signal defines the primitive value types shared by every other
// testbed package: the digital/analog signal tag, I/O direction, and the
// host-pin/DUT-pin numbering used throughout the pin mapping.
package signal

import "fmt"

// Kind tags the two forms a Signal can take.
type Kind int

const (
	// KindDigital carries a boolean logic level.
	KindDigital Kind = iota
	// KindAnalog carries a raw sampled value.
	KindAnalog
)

// Signal is a tagged value observed on, or driven onto, a pin.
//
// Only Digital signals are driven by the executor's drive loop, which
// panics on an Analog Input action; the observer records only Digital
// Responses.
type Signal struct {
	kind    Kind
	digital bool
	analog  uint32
}

// Digital constructs a digital-level Signal.
func Digital(high bool) Signal {
	return Signal{kind: KindDigital, digital: high}
}

// Analog constructs an analog-sample Signal.
func Analog(value uint32) Signal {
	return Signal{kind: KindAnalog, analog: value}
}

// Kind reports which variant the Signal holds.
func (s Signal) Kind() Kind { return s.kind }

// IsHigh reports the logic level of a Digital signal. It panics if called
// on an Analog signal; callers must check Kind first.
func (s Signal) IsHigh() bool {
	if s.kind != KindDigital {
		panic("signal: IsHigh called on a non-digital Signal")
	}
	return s.digital
}

// AnalogValue reports the sampled value of an Analog signal. It panics if
// called on a Digital signal.
func (s Signal) AnalogValue() uint32 {
	if s.kind != KindAnalog {
		panic("signal: AnalogValue called on a non-analog Signal")
	}
	return s.analog
}

func (s Signal) String() string {
	switch s.kind {
	case KindDigital:
		if s.digital {
			return "digital(high)"
		}
		return "digital(low)"
	case KindAnalog:
		return fmt.Sprintf("analog(%d)", s.analog)
	default:
		return "signal(?)"
	}
}

// Direction is the data flow direction of a pin relative to the DUT.
type Direction int

const (
	// In carries signals from the host into the DUT.
	In Direction = iota
	// Out carries signals from the DUT to the host.
	Out
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return "?"
	}
}

// Class names the kind of signal a pin is declared to carry. It is
// descriptive metadata attached to a Device's pin declarations; nothing
// in the executor currently branches on it beyond display purposes, but
// it documents intent (e.g. "a reset line" vs "a blink indicator").
type Class int

const (
	// ClassGeneric is an undistinguished digital I/O signal.
	ClassGeneric Class = iota
	// ClassReset marks the DUT's reset line.
	ClassReset
)

func (c Class) String() string {
	switch c {
	case ClassGeneric:
		return "generic"
	case ClassReset:
		return "reset"
	default:
		return "?"
	}
}

// PinNo identifies a single GPIO pin, either on the host SBC or on the DUT,
// depending on context.
type PinNo = uint8
