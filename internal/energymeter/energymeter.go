// Package energymeter declares the current/power metering contract the
// energy worker samples, and an INA219-backed implementation over
// periph.io's i2c.Dev (see DESIGN.md for why this driver is built
// directly on periph's conventions rather than an existing one) —
// open an i2c.Dev, Tx() raw register reads, decode into periph's own
// physic unit types, the same shape periph device packages use.
package energymeter

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Metering is the contract the energy worker samples each
// criterion-referenced meter through: current in mA, power in mJ/s.
type Metering interface {
	// Current reports the instantaneous current draw in mA.
	Current() (float32, error)
	// Power reports the instantaneous power draw in mJ/s.
	Power() (float32, error)
	// CooldownDuration is the minimum time the executor should leave
	// between successive tests that reference this meter, to let any
	// shunt-averaging settle.
	CooldownDuration() time.Duration
}

// INA219 registers (datasheet-standard addresses).
const (
	regConfig       = 0x00
	regShuntVoltage = 0x01
	regBusVoltage   = 0x02
	regPower        = 0x03
	regCurrent      = 0x04
	regCalibration  = 0x05
)

// defaultConfig enables continuous shunt-and-bus-voltage conversion
// with the widest PGA gain (±320mV) and 12-bit/532us conversion time,
// the INA219 datasheet's "typical application" configuration.
const defaultConfig = 0x399F

// INA219 is an I2C-attached current/power sensor. The bus transaction
// is serialized behind mu: the datasheet requires one conversion cycle
// to complete before the next register read is meaningful, and nothing
// else may interleave a transaction on the shared bus in between.
type INA219 struct {
	mu   sync.Mutex
	dev  *i2c.Dev
	cal  uint16
	lsbA float32 // current LSB, amps per bit
	cool time.Duration
}

// CalibrationParams configures the INA219's internal scaling for a
// given shunt resistor and expected max current, per the datasheet's
// calibration procedure.
type CalibrationParams struct {
	ShuntOhms     float32
	MaxExpectedA  float32
	CooldownAfter time.Duration
}

// NewINA219 opens and calibrates an INA219 at addr on bus.
func NewINA219(bus i2c.Bus, addr uint16, params CalibrationParams) (*INA219, error) {
	dev := &i2c.Dev{Bus: bus, Addr: addr}

	lsbA := params.MaxExpectedA / 32768.0
	cal := uint16(0.04096 / (lsbA * params.ShuntOhms))

	m := &INA219{dev: dev, cal: cal, lsbA: lsbA, cool: params.CooldownAfter}

	if err := m.writeRegister(regConfig, defaultConfig); err != nil {
		return nil, fmt.Errorf("energymeter: configuring INA219 at %#x: %w", addr, err)
	}
	if err := m.writeRegister(regCalibration, cal); err != nil {
		return nil, fmt.Errorf("energymeter: calibrating INA219 at %#x: %w", addr, err)
	}

	return m, nil
}

func (m *INA219) writeRegister(reg byte, value uint16) error {
	buf := []byte{reg, byte(value >> 8), byte(value)}
	return m.dev.Tx(buf, nil)
}

func (m *INA219) readRegister(reg byte) (uint16, error) {
	out := make([]byte, 2)
	if err := m.dev.Tx([]byte{reg}, out); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(out), nil
}

// Current reports the instantaneous current draw in mA.
func (m *INA219) Current() (float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.readRegister(regCurrent)
	if err != nil {
		return 0, fmt.Errorf("energymeter: reading current register: %w", err)
	}
	amps := float32(int16(raw)) * m.lsbA
	return amps * 1000.0, nil
}

// Power reports the instantaneous power draw in mJ/s (milliwatts).
func (m *INA219) Power() (float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.readRegister(regPower)
	if err != nil {
		return 0, fmt.Errorf("energymeter: reading power register: %w", err)
	}
	// Power LSB is 20x the current LSB per the datasheet.
	watts := float32(int16(raw)) * (m.lsbA * 20)
	return watts * 1000.0, nil
}

// CooldownDuration returns the configured inter-test settling period.
func (m *INA219) CooldownDuration() time.Duration { return m.cool }

// AsElectricCurrent converts a Current() reading into periph's unit
// type, for callers that want to interoperate with other periph-based
// components instead of a bare float.
func AsElectricCurrent(milliamps float32) physic.ElectricCurrent {
	return physic.ElectricCurrent(float64(milliamps) * float64(physic.MilliAmpere))
}

// AsPower converts a Power() reading (mJ/s == mW) into periph's unit type.
func AsPower(milliwatts float32) physic.Power {
	return physic.Power(float64(milliwatts) * float64(physic.MilliWatt))
}
