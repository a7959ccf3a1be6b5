// Package executor implements the per-test state machine: reconfigure
// the DUT, load its applications, rendezvous with the worker pool,
// drive the input timeline, rendezvous again, and assemble an
// Observation from whatever the workers captured. Grounded on
// original_source/common/src/testbed.rs's Testbed::run_tests and its
// launch_* worker-spawning methods.
package executor

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/mdclyburn/flexbed/internal/constants"
	"github.com/mdclyburn/flexbed/internal/currenttest"
	"github.com/mdclyburn/flexbed/internal/device"
	"github.com/mdclyburn/flexbed/internal/energymeter"
	"github.com/mdclyburn/flexbed/internal/iomap"
	"github.com/mdclyburn/flexbed/internal/logging"
	"github.com/mdclyburn/flexbed/internal/observation"
	"github.com/mdclyburn/flexbed/internal/platform"
	"github.com/mdclyburn/flexbed/internal/rendezvous"
	"github.com/mdclyburn/flexbed/internal/testdef"
	"github.com/mdclyburn/flexbed/internal/trace"
	"github.com/mdclyburn/flexbed/internal/worker"
)

// Code classifies why a test's execution_result failed: the stable,
// user-visible failure kinds a caller can branch on.
type Code int

const (
	CodeReconfigure Code = iota
	CodeLoad
	CodeReset
	CodeExecution
	CodeIO
	CodeNoSuchMeter
	CodeDecode
)

func (c Code) String() string {
	switch c {
	case CodeReconfigure:
		return "Reconfigure"
	case CodeLoad:
		return "Load"
	case CodeReset:
		return "Reset"
	case CodeExecution:
		return "Execution"
	case CodeIO:
		return "IO"
	case CodeNoSuchMeter:
		return "NoSuchMeter"
	case CodeDecode:
		return "Decode"
	default:
		return "?"
	}
}

// Failure wraps a Code with its underlying cause; it is what
// observation.Observation.ExecutionErr holds when a test did not run
// to completion.
type Failure struct {
	Code  Code
	Cause error
}

func (f *Failure) Error() string {
	if f.Cause == nil {
		return f.Code.String()
	}
	return fmt.Sprintf("%s: %v", f.Code, f.Cause)
}

func (f *Failure) Unwrap() error { return f.Cause }

// ExtraTraceConfig configures one additional tracing channel beyond the
// fixed serial-trace and memory-accounting workers.
type ExtraTraceConfig struct {
	Label string
	Port  interface {
		Read([]byte) (int, error)
	}
}

// Config wires together everything one Executor instance needs.
type Config struct {
	Mapping     *iomap.Mapping
	Platform    platform.Support
	Meters      map[string]energymeter.Metering
	TracePort   interface{ Read([]byte) (int, error) }
	MemoryPort  interface{ Read([]byte) (int, error) }
	ExtraTraces []ExtraTraceConfig
}

// Executor runs a sequence of tests against one wired-up testbed.
type Executor struct {
	cfg     Config
	dev     *device.Device
	current currenttest.Holder
	barrier *rendezvous.Barrier
	log     *logging.Logger

	outputs map[uint8]gpio.PinIn

	observerResults chan []testdef.Response
	energyResults   chan map[string][]observation.EnergySample
	traceResults    chan []trace.Event
	memResults      chan worker.MemoryResult
	extraResults    []chan []trace.Event
}

// New builds an Executor and acquires the observer's output pin-set
// once, up front, reused across every test in the run.
func New(cfg Config) (*Executor, error) {
	outputs, err := iomap.AcquireOutputs(cfg.Mapping)
	if err != nil {
		return nil, fmt.Errorf("executor: acquiring output pins: %w", err)
	}

	width := constants.FixedWorkerCount + 1 + len(cfg.ExtraTraces) // +1 for the executor itself
	e := &Executor{
		cfg:     cfg,
		dev:     cfg.Mapping.Device(),
		barrier: rendezvous.New(width),
		log:     logging.Default().With("executor"),
		outputs: outputs,
	}

	e.observerResults = make(chan []testdef.Response)
	e.energyResults = make(chan map[string][]observation.EnergySample)
	e.traceResults = make(chan []trace.Event)
	e.memResults = make(chan worker.MemoryResult)
	e.extraResults = make([]chan []trace.Event, len(cfg.ExtraTraces))
	for i := range e.extraResults {
		e.extraResults[i] = make(chan []trace.Event)
	}

	obs := &worker.Observer{Outputs: outputs, Results: e.observerResults}
	go obs.Run(e.barrier, &e.current)

	em := &worker.EnergyMeter{Meters: cfg.Meters, Results: e.energyResults}
	go em.Run(e.barrier, &e.current)

	st := &worker.SerialTracer{Port: cfg.TracePort, Results: e.traceResults}
	go st.Run(e.barrier, &e.current)

	mt := &worker.MemoryTracer{Port: cfg.MemoryPort, Results: e.memResults}
	go mt.Run(e.barrier, &e.current)

	for i, xc := range cfg.ExtraTraces {
		xt := &worker.ExtraTracer{Label: xc.Label, Port: xc.Port, Results: e.extraResults[i]}
		go xt.Run(e.barrier, &e.current)
	}

	return e, nil
}

// RunAll reconfigures, loads, and executes every test in order,
// returning one Observation per test. A reconfigure or load failure
// skips that test's execution but never aborts the run.
func (e *Executor) RunAll(tests []testdef.Test) []observation.Observation {
	observations := make([]observation.Observation, 0, len(tests))
	for _, test := range tests {
		observations = append(observations, e.runOne(test))
	}

	e.current.Set(nil)
	e.barrier.Wait() // final R(prep): lets every worker see nil and exit

	return observations
}

func (e *Executor) runOne(test testdef.Test) observation.Observation {
	spec, err := e.cfg.Platform.Reconfigure(test.TracePoints)
	if err != nil {
		e.log.Errorf("reconfigure failed for test %s: %v", test.ID, err)
		return observation.Failed(test, nil, &Failure{Code: CodeReconfigure, Cause: err})
	}

	for _, appID := range test.AppIDs {
		loaded := e.cfg.Platform.Loaded()
		if _, ok := loaded[appID]; ok {
			continue
		}
		if err := e.cfg.Platform.Load(appID); err != nil {
			e.log.Errorf("load failed for test %s: %v", test.ID, err)
			return observation.Failed(test, &spec, &Failure{Code: CodeLoad, Cause: err})
		}
	}

	testCopy := test
	e.current.Set(&testCopy)

	inputs, err := iomap.AcquireInputs(e.cfg.Mapping)
	if err != nil {
		return observation.Failed(test, &spec, &Failure{Code: CodeIO, Cause: err})
	}

	e.barrier.Wait() // R(prep)

	if test.ResetOnStart {
		if err := e.dev.HoldReset(inputs); err != nil {
			e.log.Errorf("hold reset failed for test %s: %v", test.ID, err)
			// Keep the workers in lock-step: cross R(start) and R(end)
			// and drain their results before abandoning the test.
			e.barrier.Wait() // R(start)
			e.barrier.Wait() // R(end)
			<-e.observerResults
			<-e.energyResults
			<-e.traceResults
			<-e.memResults
			for _, ch := range e.extraResults {
				<-ch
			}
			return observation.Failed(test, &spec, &Failure{Code: CodeReset, Cause: err})
		}
	}

	e.barrier.Wait() // R(start)
	t0 := time.Now()

	if test.ResetOnStart {
		if err := e.dev.ReleaseReset(inputs); err != nil {
			// Fatal: DUT state is now undefined.
			panic(fmt.Sprintf("executor: failed to release device from reset: %v", err))
		}
	}

	drive := func(pin uint8, high bool) error {
		line, ok := inputs[pin]
		if !ok {
			return fmt.Errorf("executor: no acquired input line for pin %d", pin)
		}
		level := gpio.Low
		if high {
			level = gpio.High
		}
		return line.Out(level)
	}

	execution, execErr := test.Execute(t0, drive)

	e.barrier.Wait() // R(end)

	responses := <-e.observerResults
	energy := <-e.energyResults
	traces := <-e.traceResults
	memResult := <-e.memResults

	extraTraces := make(map[string][]trace.Event, len(e.cfg.ExtraTraces))
	for i, xc := range e.cfg.ExtraTraces {
		extraTraces[xc.Label] = <-e.extraResults[i]
	}

	if memResult.ResidualBytes > 0 {
		e.log.Warnf("test %s: %d residual bytes left undecoded in memory stream", test.ID, memResult.ResidualBytes)
	}

	if execErr != nil {
		return observation.Failed(test, &spec, &Failure{Code: CodeExecution, Cause: execErr})
	}

	samples := make(map[string][]observation.EnergySample, len(energy))
	for k, v := range energy {
		samples[k] = v
	}

	return observation.Completed(test, &spec, execution, responses, traces, memResult.Frames, extraTraces, samples, memResult.ResidualBytes)
}
