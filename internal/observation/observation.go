// Package observation defines the raw per-test data product the
// executor assembles once a test's workers have drained: the Test that
// ran, its execution outcome, and everything the workers captured.
// Grounded on original_source/common/src/testbed.rs's Observation type
// (its completed/failed constructors and accessor set).
package observation

import (
	"time"

	"github.com/mdclyburn/flexbed/internal/memframe"
	"github.com/mdclyburn/flexbed/internal/platform"
	"github.com/mdclyburn/flexbed/internal/testdef"
	"github.com/mdclyburn/flexbed/internal/trace"
)

// EnergySample pairs one captured reading with its capture time.
type EnergySample struct {
	At    time.Time
	Value float32
}

// Observation is everything the executor collected for one executed
// test, successful or not.
type Observation struct {
	Test            testdef.Test
	SoftwareSpec    *platform.Spec
	Execution       testdef.Execution
	ExecutionErr    error
	Responses       []testdef.Response
	Traces          []trace.Event
	MemoryTraces    []memframe.Frame
	ExtraTraces     map[string][]trace.Event // keyed by the configured tracing kind's label
	EnergySamples   map[string][]EnergySample
	DecodeResidualB int
}

// Completed builds an Observation for a test that ran to completion
// (whether or not individual criteria will later Pass or Fail — that
// judgment belongs to the evaluator, not here).
func Completed(
	test testdef.Test,
	spec *platform.Spec,
	exec testdef.Execution,
	responses []testdef.Response,
	traces []trace.Event,
	memTraces []memframe.Frame,
	extraTraces map[string][]trace.Event,
	energy map[string][]EnergySample,
	decodeResidual int,
) Observation {
	return Observation{
		Test:            test,
		SoftwareSpec:    spec,
		Execution:       exec,
		Responses:       responses,
		Traces:          traces,
		MemoryTraces:    memTraces,
		ExtraTraces:     extraTraces,
		EnergySamples:   energy,
		DecodeResidualB: decodeResidual,
	}
}

// Failed builds an Observation for a test that was abandoned before
// (or during) execution; every collection field is left empty and the
// test's execution_result carries the cause.
func Failed(test testdef.Test, spec *platform.Spec, err error) Observation {
	return Observation{
		Test:         test,
		SoftwareSpec: spec,
		ExecutionErr: err,
	}
}

// Failed reports whether the test did not complete.
func (o Observation) Failed() bool { return o.ExecutionErr != nil }
