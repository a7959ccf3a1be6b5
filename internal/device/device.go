// Package device declares the Device model: a DUT's pin directions and
// signal classes, plus the optional reset hooks the executor invokes
// around a test. Grounded on the Backend/DeviceParams pattern in
// internal/ctrl/types.go: a plain configuration struct with validated
// accessors, no hidden state.
package device

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"

	"github.com/mdclyburn/flexbed/internal/signal"
)

// ResetFunc is invoked by the executor to hold the DUT in, or release it
// from, reset. It is given the set of host-side input pins (the pins
// wired to the DUT's inputs) so it can drive whichever one is mapped to
// the DUT's reset line.
//
// The original carries this as a reference-counted callable on the
// Device so the Device can be moved into a Mapping while the executor
// still invokes it; a plain function value serves the same purpose in Go
// since Device values are shared by pointer, not moved.
type ResetFunc func(inputs map[signal.PinNo]gpio.PinOut) error

// Device declares a DUT: which pins it exposes, their direction and
// signal class, and (optionally) how to hold it in and release it from
// reset.
type Device struct {
	pins map[signal.PinNo]pinDecl

	holdReset    ResetFunc
	releaseReset ResetFunc
	resetPin     signal.PinNo
	hasResetPin  bool
}

type pinDecl struct {
	direction signal.Direction
	class     signal.Class
}

// PinDecl is a single DUT-pin declaration used to build a Device.
type PinDecl struct {
	Pin       signal.PinNo
	Direction signal.Direction
	Class     signal.Class
}

// New declares a Device from its pin table.
func New(pins []PinDecl) *Device {
	d := &Device{pins: make(map[signal.PinNo]pinDecl, len(pins))}
	for _, p := range pins {
		d.pins[p.Pin] = pinDecl{direction: p.Direction, class: p.Class}
	}
	return d
}

// WithReset attaches reset hooks and declares which DUT pin is the reset
// line. The reset pin must already be declared with Direction = In; use
// after New, before the Device is handed to a Mapping.
func (d *Device) WithReset(resetPin signal.PinNo, hold, release ResetFunc) (*Device, error) {
	decl, ok := d.pins[resetPin]
	if !ok {
		return nil, fmt.Errorf("device: reset pin %d is not declared", resetPin)
	}
	if decl.direction != signal.In {
		return nil, fmt.Errorf("device: reset pin %d must be declared Direction=In", resetPin)
	}

	d.holdReset = hold
	d.releaseReset = release
	d.resetPin = resetPin
	d.hasResetPin = true
	return d, nil
}

// HasPin reports whether the DUT declares the given pin.
func (d *Device) HasPin(pin signal.PinNo) bool {
	_, ok := d.pins[pin]
	return ok
}

// HasPins reports an error naming the first undeclared pin, if any.
func (d *Device) HasPins(pins []signal.PinNo) error {
	for _, p := range pins {
		if !d.HasPin(p) {
			return fmt.Errorf("device: pin %d is not declared", p)
		}
	}
	return nil
}

// DirectionOf returns the declared direction of a pin.
func (d *Device) DirectionOf(pin signal.PinNo) (signal.Direction, error) {
	decl, ok := d.pins[pin]
	if !ok {
		return 0, fmt.Errorf("device: pin %d is not declared", pin)
	}
	return decl.direction, nil
}

// ClassOf returns the declared signal class of a pin.
func (d *Device) ClassOf(pin signal.PinNo) (signal.Class, error) {
	decl, ok := d.pins[pin]
	if !ok {
		return 0, fmt.Errorf("device: pin %d is not declared", pin)
	}
	return decl.class, nil
}

// Pins returns the set of declared DUT pins, in no particular order.
func (d *Device) Pins() []signal.PinNo {
	out := make([]signal.PinNo, 0, len(d.pins))
	for p := range d.pins {
		out = append(out, p)
	}
	return out
}

// HoldReset invokes the hold-in-reset hook, if one is defined.
func (d *Device) HoldReset(inputs map[signal.PinNo]gpio.PinOut) error {
	if d.holdReset == nil {
		return fmt.Errorf("device: no reset functionality defined")
	}
	return d.holdReset(inputs)
}

// ReleaseReset invokes the release-from-reset hook, if one is defined.
func (d *Device) ReleaseReset(inputs map[signal.PinNo]gpio.PinOut) error {
	if d.releaseReset == nil {
		return fmt.Errorf("device: no reset functionality defined")
	}
	return d.releaseReset(inputs)
}

// HasReset reports whether reset hooks are defined for this Device.
func (d *Device) HasReset() bool {
	return d.holdReset != nil && d.releaseReset != nil
}
