// Package flexbed is the public API of an automated embedded-device
// test harness: declare a Device and its host pin mapping, wire up
// energy meters and tracing UARTs, then run a suite of declarative
// Tests and judge the results. Internals live under internal/; this
// file assembles them into one Testbed type following the
// Backend-wrapping root package pattern (backend.go): a thin,
// validated constructor over the internal machinery plus a run-loop
// entry point.
package flexbed

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/mdclyburn/flexbed/internal/config"
	"github.com/mdclyburn/flexbed/internal/csvout"
	"github.com/mdclyburn/flexbed/internal/energymeter"
	"github.com/mdclyburn/flexbed/internal/evaluate"
	"github.com/mdclyburn/flexbed/internal/executor"
	"github.com/mdclyburn/flexbed/internal/logging"
	"github.com/mdclyburn/flexbed/internal/platform"
	"github.com/mdclyburn/flexbed/internal/testdef"
	"github.com/mdclyburn/flexbed/internal/tockplatform"
	"github.com/mdclyburn/flexbed/internal/uartio"
)

// Status re-exports the judged-outcome lattice at the public API
// boundary.
type Status = evaluate.Status

const (
	Complete = evaluate.Complete
	Pass     = evaluate.Pass
	Fail     = evaluate.Fail
	Error    = evaluate.Error
)

// Evaluation re-exports the per-test judgment type.
type Evaluation = evaluate.Evaluation

// Test re-exports the declarative test type.
type Test = testdef.Test

// Config is everything needed to build a Testbed: a loaded
// TestbedConfig plus the one thing JSON cannot express, the platform
// implementation under test.
type Config struct {
	Testbed  config.TestbedConfig
	Platform platform.Support
}

// Testbed owns the wired-up executor, metrics, and an optional CSV
// output writer, and runs Tests against one DUT.
type Testbed struct {
	exec    *executor.Executor
	metrics *Metrics
	writer  *csvout.Writer
	log     *logging.Logger
}

// Open validates a Config, acquires the I2C bus and opens every
// configured meter and UART, and builds a ready-to-run Testbed. If
// Config.Platform is nil and the loaded TestbedConfig names a Tock
// target, a tockplatform.Tock is built from it.
func Open(cfg Config) (*Testbed, error) {
	if cfg.Platform == nil && cfg.Testbed.Tock != nil {
		td := cfg.Testbed.Tock
		cfg.Platform = tockplatform.New(tockplatform.Config{
			TockloaderPath: td.TockloaderPath,
			SourcePath:     td.SourcePath,
			Board:          td.Board,
			SpecPath:       td.SpecPath,
		})
	}
	if cfg.Platform == nil {
		return nil, fmt.Errorf("flexbed: no Platform given and no tock configuration present")
	}

	dev, err := cfg.Testbed.BuildDevice()
	if err != nil {
		return nil, fmt.Errorf("flexbed: %w", err)
	}

	if cfg.Testbed.ResetPin != nil {
		resetPin := *cfg.Testbed.ResetPin
		dev, err = dev.WithReset(resetPin, activeLowHold(resetPin), activeLowRelease(resetPin))
		if err != nil {
			return nil, fmt.Errorf("flexbed: %w", err)
		}
	}

	mapping, err := cfg.Testbed.BuildMapping(dev)
	if err != nil {
		return nil, fmt.Errorf("flexbed: %w", err)
	}

	meters, err := openMeters(cfg.Testbed.Meters)
	if err != nil {
		return nil, fmt.Errorf("flexbed: %w", err)
	}

	uarts, err := openUARTs(cfg.Testbed.UARTs)
	if err != nil {
		return nil, fmt.Errorf("flexbed: %w", err)
	}

	extraTraces := make([]executor.ExtraTraceConfig, 0, len(uarts))
	var tracePort, memPort portReader
	for label, port := range uarts {
		switch label {
		case "trace":
			tracePort = port
		case "memory":
			memPort = port
		default:
			extraTraces = append(extraTraces, executor.ExtraTraceConfig{Label: label, Port: port})
		}
	}

	exec, err := executor.New(executor.Config{
		Mapping:     mapping,
		Platform:    cfg.Platform,
		Meters:      meters,
		TracePort:   tracePort,
		MemoryPort:  memPort,
		ExtraTraces: extraTraces,
	})
	if err != nil {
		return nil, fmt.Errorf("flexbed: %w", err)
	}

	var writer *csvout.Writer
	if cfg.Testbed.CSVOutDir != "" {
		writer = csvout.New(cfg.Testbed.CSVOutDir)
	}

	return &Testbed{
		exec:    exec,
		metrics: NewMetrics(),
		writer:  writer,
		log:     logging.Default().With("testbed"),
	}, nil
}

// Metrics returns the run-wide metrics accumulated so far.
func (tb *Testbed) Metrics() *Metrics { return tb.metrics }

// Run executes every test in order, evaluates each Observation with
// the standard Evaluator, records metrics, writes a CSV bundle for
// each test if configured, and returns one Evaluation per test.
func (tb *Testbed) Run(tests []Test) []Evaluation {
	observations := tb.exec.RunAll(tests)

	var evaluator evaluate.Standard
	evaluations := make([]Evaluation, 0, len(observations))
	for _, obs := range observations {
		eval := evaluator.Evaluate(obs)
		evaluations = append(evaluations, eval)

		var sampleCount int
		for _, samples := range obs.EnergySamples {
			sampleCount += len(samples)
		}

		var traceBytes int
		for _, ev := range obs.Traces {
			traceBytes += ev.Len()
		}

		tb.metrics.RecordOutcome(eval.Status, len(eval.Outcomes), obs.Execution.Duration())
		tb.metrics.RecordTrace(uint64(traceBytes), uint64(len(obs.MemoryTraces)), uint64(sampleCount))

		if tb.writer != nil {
			if err := tb.writer.Write(obs); err != nil {
				tb.log.Errorf("writing CSV bundle for test %s: %v", obs.Test.ID, err)
			}
		}
	}

	tb.metrics.Stop()
	return evaluations
}

type portReader interface {
	Read([]byte) (int, error)
}

func openMeters(decls []config.MeterDecl) (map[string]energymeter.Metering, error) {
	meters := make(map[string]energymeter.Metering, len(decls))
	for _, d := range decls {
		bus, err := i2creg.Open("")
		if err != nil {
			return nil, fmt.Errorf("opening i2c bus for meter %q: %w", d.Name, err)
		}
		m, err := energymeter.NewINA219(bus, d.I2CAddr, energymeter.CalibrationParams{
			ShuntOhms:     d.ShuntOhms,
			MaxExpectedA:  d.MaxExpectedA,
			CooldownAfter: time.Duration(d.CooldownMS) * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing meter %q: %w", d.Name, err)
		}
		meters[d.Name] = m
	}
	return meters, nil
}

func openUARTs(decls []config.UARTDecl) (map[string]portReader, error) {
	ports := make(map[string]portReader, len(decls))
	for _, d := range decls {
		p, err := uartio.Open(d.Path)
		if err != nil {
			return nil, fmt.Errorf("opening UART %q at %s: %w", d.Label, d.Path, err)
		}
		ports[d.Label] = p
	}
	return ports, nil
}

func activeLowHold(resetPin uint8) func(map[uint8]gpio.PinOut) error {
	return func(inputs map[uint8]gpio.PinOut) error {
		line, ok := inputs[resetPin]
		if !ok {
			return fmt.Errorf("flexbed: reset pin %d was not acquired as a host output line", resetPin)
		}
		return line.Out(gpio.Low)
	}
}

func activeLowRelease(resetPin uint8) func(map[uint8]gpio.PinOut) error {
	return func(inputs map[uint8]gpio.PinOut) error {
		line, ok := inputs[resetPin]
		if !ok {
			return fmt.Errorf("flexbed: reset pin %d was not acquired as a host output line", resetPin)
		}
		return line.Out(gpio.High)
	}
}
