// Package worker implements the long-lived worker goroutines that
// orbit the executor's shared rendezvous barrier, one per resource
// class: observer (DUT-output pins), energy meters, serial-trace UART,
// memory-accounting UART, and user-configured additional tracing UARTs.
// Grounded on original_source/common/src/testbed.rs's launch_observer /
// launch_metering / launch_tracing / launch_memstat /
// launch_tracing_kind methods; each Run method below follows the same
// four-phase loop those do, adapted to Go channels instead of
// SyncSender<Option<T>> plus a trailing sentinel.
//
// Every worker's responses are already keyed by DUT pin: iomap's
// acquisition functions resolve the host/target numbering once, up
// front, so unlike the original (which remaps host pin numbers to DUT
// pin numbers when the executor drains the observer's channel) there
// is no separate remap step here — acquisition has already done that
// translation.
package worker

import (
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/mdclyburn/flexbed/internal/constants"
	"github.com/mdclyburn/flexbed/internal/currenttest"
	"github.com/mdclyburn/flexbed/internal/energymeter"
	"github.com/mdclyburn/flexbed/internal/iomap"
	"github.com/mdclyburn/flexbed/internal/memframe"
	"github.com/mdclyburn/flexbed/internal/observation"
	"github.com/mdclyburn/flexbed/internal/rendezvous"
	"github.com/mdclyburn/flexbed/internal/signal"
	"github.com/mdclyburn/flexbed/internal/testdef"
	"github.com/mdclyburn/flexbed/internal/trace"
)

// Observer owns the acquired DUT-output-side GPIO lines and reports
// Responses for every test.
type Observer struct {
	Outputs map[signal.PinNo]gpio.PinIn
	Results chan<- []testdef.Response
}

// Run executes the observer's four-phase loop until the current test
// is published as nil.
func (o *Observer) Run(barrier *rendezvous.Barrier, current *currenttest.Holder) {
	defer close(o.Results)

	for {
		barrier.Wait() // R(prep)

		test := current.Get()
		if test == nil {
			return
		}

		pins := test.GPIOCriteriaPins()
		if len(pins) > 0 {
			_ = iomap.ArmEdges(o.Outputs, gpio.BothEdges, pins, pins[len(pins)-1])
		}

		barrier.Wait() // R(start)
		t0 := time.Now()

		responses := o.watch(t0, test, pins)

		barrier.Wait() // R(end)

		for _, p := range pins {
			if line, ok := o.Outputs[p]; ok {
				line.In(gpio.PullNoChange, gpio.NoEdge)
			}
		}

		o.Results <- responses
	}
}

func (o *Observer) watch(t0 time.Time, test *testdef.Test, pins []signal.PinNo) []testdef.Response {
	deadline := t0.Add(test.MaxRuntime())
	var responses []testdef.Response

	for time.Now().Before(deadline) {
		for _, p := range pins {
			line, ok := o.Outputs[p]
			if !ok {
				continue
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			if line.WaitForEdge(remaining) {
				level := line.Read()
				responses = append(responses, testdef.Response{
					Time:   time.Now(),
					Pin:    p,
					Output: signal.Digital(level == gpio.High),
				})
			}
		}
	}

	return responses
}

// EnergyMeter samples every criterion-referenced meter each test.
type EnergyMeter struct {
	Meters  map[string]energymeter.Metering
	Results chan<- map[string][]observation.EnergySample
}

func (e *EnergyMeter) Run(barrier *rendezvous.Barrier, current *currenttest.Holder) {
	defer close(e.Results)

	for {
		barrier.Wait() // R(prep)

		test := current.Get()
		if test == nil {
			return
		}

		names := test.EnergyMeters()
		samples := make(map[string][]observation.EnergySample, len(names))
		for _, n := range names {
			samples[n] = make([]observation.EnergySample, 0, test.MaxSampleCount())
		}

		if len(names) == 0 {
			barrier.Wait() // R(start): nothing to do this test
		} else {
			barrier.Wait() // R(start)
			t0 := time.Now()
			deadline := t0.Add(test.MaxRuntime())
			for time.Now().Before(deadline) {
				now := time.Now()
				for _, n := range names {
					m, ok := e.Meters[n]
					if !ok {
						continue
					}
					v, err := m.Power()
					if err != nil {
						continue
					}
					samples[n] = append(samples[n], observation.EnergySample{At: now, Value: v})
				}
			}
		}

		barrier.Wait() // R(end)
		e.Results <- samples
	}
}

// SerialTracer reads the primary trace UART.
type SerialTracer struct {
	Port    interface {
		Read([]byte) (int, error)
	}
	Results chan<- []trace.Event
}

func (s *SerialTracer) Run(barrier *rendezvous.Barrier, current *currenttest.Holder) {
	defer close(s.Results)

	buf := make([]byte, constants.TraceBufferSize)

	for {
		barrier.Wait() // R(prep)

		test := current.Get()
		if test == nil {
			return
		}

		barrier.Wait() // R(start)
		t0 := time.Now()
		deadline := t0.Add(test.MaxRuntime())

		bytesRead, schedule := s.read(buf, deadline)

		barrier.Wait() // R(end)

		events := trace.Reconstruct(t0, buf[:bytesRead], schedule)
		s.Results <- events
	}
}

func (s *SerialTracer) read(buf []byte, deadline time.Time) (int, []trace.ReadChunk) {
	var bytesRead int
	var schedule []trace.ReadChunk
	for time.Now().Before(deadline) {
		n, err := s.Port.Read(buf[bytesRead:])
		if err != nil {
			break
		}
		if n > 0 {
			schedule = append(schedule, trace.ReadChunk{Arrived: time.Now(), Bytes: n})
			bytesRead += n
		}
	}
	return bytesRead, schedule
}

// MemoryTracer reads the memory-accounting UART and decodes it through
// the streaming frame decoder.
type MemoryTracer struct {
	Port interface {
		Read([]byte) (int, error)
	}
	Results chan<- MemoryResult
}

// MemoryResult is one test's decoded memory-accounting stream.
type MemoryResult struct {
	Frames          []memframe.Frame
	ResidualBytes   int
}

func (m *MemoryTracer) Run(barrier *rendezvous.Barrier, current *currenttest.Holder) {
	defer close(m.Results)

	buf := make([]byte, constants.TraceBufferSize)

	for {
		barrier.Wait() // R(prep)

		test := current.Get()
		if test == nil {
			return
		}

		barrier.Wait() // R(start)
		t0 := time.Now()
		deadline := t0.Add(test.MaxRuntime())

		var stream memframe.Stream
		var frames []memframe.Frame
		for time.Now().Before(deadline) {
			n, err := m.Port.Read(buf)
			if err != nil {
				break
			}
			if n > 0 {
				frames = append(frames, stream.Feed(buf[:n], time.Now())...)
			}
		}

		barrier.Wait() // R(end)

		m.Results <- MemoryResult{Frames: frames, ResidualBytes: stream.Pending()}
	}
}

// ExtraTracer is one user-configured additional tracing channel.
type ExtraTracer struct {
	Label string
	Port  interface {
		Read([]byte) (int, error)
	}
	Results chan<- []trace.Event
}

func (x *ExtraTracer) Run(barrier *rendezvous.Barrier, current *currenttest.Holder) {
	defer close(x.Results)

	buf := make([]byte, constants.TraceBufferSize)

	for {
		barrier.Wait() // R(prep)

		test := current.Get()
		if test == nil {
			return
		}

		barrier.Wait() // R(start)
		t0 := time.Now()
		deadline := t0.Add(test.MaxRuntime())

		var bytesRead int
		var schedule []trace.ReadChunk
		for time.Now().Before(deadline) {
			n, err := x.Port.Read(buf[bytesRead:])
			if err != nil {
				break
			}
			if n > 0 {
				schedule = append(schedule, trace.ReadChunk{Arrived: time.Now(), Bytes: n})
				bytesRead += n
			}
		}

		barrier.Wait() // R(end)

		x.Results <- trace.Reconstruct(t0, buf[:bytesRead], schedule)
	}
}
