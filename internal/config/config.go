// Package config loads and validates the TestbedConfig JSON document:
// the pin mapping, device declaration, energy meter addresses, and
// UART paths a Testbed is built from, using the standard
// encoding/json rather than a config-file library (see DESIGN.md).
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mdclyburn/flexbed/internal/device"
	"github.com/mdclyburn/flexbed/internal/iomap"
	"github.com/mdclyburn/flexbed/internal/signal"
)

// PinDecl declares one DUT pin's direction and signal class.
type PinDecl struct {
	Pin       signal.PinNo `json:"pin"`
	Direction string       `json:"direction"` // "in" or "out"
	Class     string       `json:"class"`     // "generic" or "reset"
}

// HostTarget pairs a host pin with the DUT pin it is wired to.
type HostTarget struct {
	Host   signal.PinNo `json:"host"`
	Target signal.PinNo `json:"target"`
}

// MeterDecl declares one I2C-attached energy meter.
type MeterDecl struct {
	Name          string  `json:"name"`
	I2CAddr       uint16  `json:"i2c_addr"`
	ShuntOhms     float32 `json:"shunt_ohms"`
	MaxExpectedA  float32 `json:"max_expected_a"`
	CooldownMS    int     `json:"cooldown_ms"`
}

// UARTDecl declares one tracing UART channel.
type UARTDecl struct {
	Label string `json:"label"` // "trace", "memory", or a user label for extra tracing
	Path  string `json:"path"`
}

// TockDecl configures a Tock OS platform.Support implementation; nil
// if the caller supplies its own platform.Support in Go instead.
type TockDecl struct {
	TockloaderPath string `json:"tockloader_path"`
	SourcePath     string `json:"source_path"`
	Board          string `json:"board"`
	SpecPath       string `json:"spec_path,omitempty"`
}

// TestbedConfig is the persisted configuration for one Testbed.
type TestbedConfig struct {
	Version       int          `json:"_version"`
	Pins          []PinDecl    `json:"pins"`
	HostTarget    []HostTarget `json:"host_target_map"`
	ResetPin      *signal.PinNo `json:"reset_pin"`
	Meters        []MeterDecl  `json:"meters"`
	UARTs         []UARTDecl   `json:"uarts"`
	CSVOutDir     string       `json:"csv_out_dir"`
	TestSuitePath string       `json:"test_suite_path"`
	Tock          *TockDecl    `json:"tock,omitempty"`
}

// Load reads and validates a TestbedConfig from path.
func Load(path string) (TestbedConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return TestbedConfig{}, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads and validates a TestbedConfig from r.
func Decode(r io.Reader) (TestbedConfig, error) {
	var cfg TestbedConfig
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return TestbedConfig{}, fmt.Errorf("config: decoding: %w", err)
	}
	if cfg.Version != 1 {
		return TestbedConfig{}, fmt.Errorf("config: unsupported version %d", cfg.Version)
	}
	return cfg, nil
}

func parseDirection(s string) (signal.Direction, error) {
	switch s {
	case "in":
		return signal.In, nil
	case "out":
		return signal.Out, nil
	default:
		return 0, fmt.Errorf("config: unrecognized direction %q", s)
	}
}

func parseClass(s string) (signal.Class, error) {
	switch s {
	case "", "generic":
		return signal.ClassGeneric, nil
	case "reset":
		return signal.ClassReset, nil
	default:
		return 0, fmt.Errorf("config: unrecognized signal class %q", s)
	}
}

// BuildDevice constructs a Device from the configuration's pin
// declarations. Reset hooks, if any, must be attached by the caller
// via device.WithReset, since they are host-specific callables this
// package has no way to construct from JSON.
func (c TestbedConfig) BuildDevice() (*device.Device, error) {
	decls := make([]device.PinDecl, 0, len(c.Pins))
	for _, p := range c.Pins {
		dir, err := parseDirection(p.Direction)
		if err != nil {
			return nil, err
		}
		class, err := parseClass(p.Class)
		if err != nil {
			return nil, err
		}
		decls = append(decls, device.PinDecl{Pin: p.Pin, Direction: dir, Class: class})
	}
	return device.New(decls), nil
}

// BuildMapping constructs an iomap.Mapping from the configuration's
// host/target numbering against an already-built Device.
func (c TestbedConfig) BuildMapping(dev *device.Device) (*iomap.Mapping, error) {
	hostTarget := make([]iomap.HostTarget, 0, len(c.HostTarget))
	for _, ht := range c.HostTarget {
		hostTarget = append(hostTarget, iomap.HostTarget{Host: ht.Host, Target: ht.Target})
	}

	var resetPin signal.PinNo
	hasReset := c.ResetPin != nil
	if hasReset {
		resetPin = *c.ResetPin
	}

	return iomap.New(dev, hostTarget, resetPin, hasReset)
}
