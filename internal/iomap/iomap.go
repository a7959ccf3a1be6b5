// Package iomap binds a Device declaration to real host pins, producing
// the host-pin-to-DUT-pin numbering the executor drives tests through.
// Grounded on original_source/common/src/io.rs's Mapping type, with the
// rppal Gpio/pin acquisition replaced by periph.io's gpioreg registry.
package iomap

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/mdclyburn/flexbed/internal/device"
	"github.com/mdclyburn/flexbed/internal/signal"
)

// HostTarget pairs a host pin with the DUT pin it is wired to.
type HostTarget struct {
	Host   signal.PinNo
	Target signal.PinNo
}

// Mapping binds a Device to a set of host pins: for every declared DUT
// pin that is actually exercised by a test, which host pin drives or
// reads it.
type Mapping struct {
	dev       *device.Device
	numbering map[signal.PinNo]signal.PinNo // host -> target
	resetPin  signal.PinNo
	hasReset  bool
}

// New validates a host/target numbering against a Device's declared
// pins and, if provided, that the reset pin is declared by the Device.
// It does not check that the reset pin is among the mapped target pins.
// It does not open any GPIO line; that happens in AcquireInputs and
// AcquireOutputs.
func New(dev *device.Device, hostTarget []HostTarget, resetPin signal.PinNo, hasResetPin bool) (*Mapping, error) {
	numbering := make(map[signal.PinNo]signal.PinNo, len(hostTarget))
	used := make([]signal.PinNo, 0, len(hostTarget)+1)
	for _, ht := range hostTarget {
		numbering[ht.Host] = ht.Target
		used = append(used, ht.Target)
	}
	if hasResetPin {
		used = append(used, resetPin)
	}
	if err := dev.HasPins(used); err != nil {
		return nil, err
	}

	return &Mapping{
		dev:       dev,
		numbering: numbering,
		resetPin:  resetPin,
		hasReset:  hasResetPin,
	}, nil
}

// Device returns the mapped Device declaration.
func (m *Mapping) Device() *device.Device { return m.dev }

// Numbering returns the host-pin-to-DUT-pin map.
func (m *Mapping) Numbering() map[signal.PinNo]signal.PinNo { return m.numbering }

// ResetPin returns the DUT reset pin and whether one is mapped.
func (m *Mapping) ResetPin() (signal.PinNo, bool) { return m.resetPin, m.hasReset }

// TargetOf returns the DUT pin that the given host pin drives or reads.
func (m *Mapping) TargetOf(hostPin signal.PinNo) (signal.PinNo, bool) {
	t, ok := m.numbering[hostPin]
	return t, ok
}

func openLine(m *Mapping, hostPin, targetPin signal.PinNo, want signal.Direction) (gpio.PinIO, error) {
	dir, err := m.dev.DirectionOf(targetPin)
	if err != nil {
		return nil, err
	}
	if dir != want {
		return nil, nil
	}

	line := gpioreg.ByName(fmt.Sprintf("GPIO%d", hostPin))
	if line == nil {
		return nil, fmt.Errorf("iomap: host pin %d not found in GPIO registry", hostPin)
	}
	return line, nil
}

// AcquireInputs opens the host lines wired to the DUT's declared input
// pins as host gpio.PinOut lines — the executor drives these to
// stimulate the DUT, and acquires them fresh each test since hold_reset
// and the drive loop both need mutable access.
func AcquireInputs(m *Mapping) (map[signal.PinNo]gpio.PinOut, error) {
	inputs := make(map[signal.PinNo]gpio.PinOut)
	for hostPin, targetPin := range m.numbering {
		line, err := openLine(m, hostPin, targetPin, signal.In)
		if err != nil {
			return inputs, err
		}
		if line == nil {
			continue
		}
		out, ok := line.(gpio.PinOut)
		if !ok {
			return inputs, fmt.Errorf("iomap: host pin %d does not support output", hostPin)
		}
		if err := out.Out(gpio.Low); err != nil {
			return inputs, fmt.Errorf("iomap: configuring host pin %d as output: %w", hostPin, err)
		}
		inputs[targetPin] = out
	}
	return inputs, nil
}

// AcquireOutputs opens the host lines wired to the DUT's declared
// output pins as host gpio.PinIn lines — the observer worker polls
// these for edges. Opened once at startup and reused across tests,
// with interrupts re-armed per test.
func AcquireOutputs(m *Mapping) (map[signal.PinNo]gpio.PinIn, error) {
	outputs := make(map[signal.PinNo]gpio.PinIn)
	for hostPin, targetPin := range m.numbering {
		line, err := openLine(m, hostPin, targetPin, signal.Out)
		if err != nil {
			return outputs, err
		}
		if line == nil {
			continue
		}
		in, ok := line.(gpio.PinIn)
		if !ok {
			return outputs, fmt.Errorf("iomap: host pin %d does not support input", hostPin)
		}
		if err := in.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return outputs, fmt.Errorf("iomap: configuring host pin %d as input: %w", hostPin, err)
		}
		outputs[targetPin] = in
	}
	return outputs, nil
}

// ArmEdges configures each listed DUT-output-side line in pins to
// interrupt on the given edge, except lastBothEdges, which is armed for
// gpio.BothEdges — mirroring Test::prep_observe's rule that
// the final trace pin watches both edges so a falling edge can close
// out a trace window.
func ArmEdges(outputs map[signal.PinNo]gpio.PinIn, edge gpio.Edge, pins []signal.PinNo, lastBothEdges signal.PinNo) error {
	for _, p := range pins {
		line, ok := outputs[p]
		if !ok {
			return fmt.Errorf("iomap: pin %d was not acquired as an output-side line", p)
		}
		want := edge
		if p == lastBothEdges {
			want = gpio.BothEdges
		}
		if err := line.In(gpio.PullNoChange, want); err != nil {
			return fmt.Errorf("iomap: arming pin %d for %v: %w", p, want, err)
		}
	}
	return nil
}
