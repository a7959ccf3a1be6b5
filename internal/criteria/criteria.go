// Package criteria defines the acceptance criteria a Test evaluates an
// Observation against: GPIO activity, energy consumption bounds, and
// ordered serial-trace conditions. Grounded on
// original_source/common/src/criteria.rs.
package criteria

import (
	"fmt"
	"strings"
	"time"

	"github.com/mdclyburn/flexbed/internal/seqmatch"
	"github.com/mdclyburn/flexbed/internal/signal"
	"github.com/mdclyburn/flexbed/internal/trace"
)

// Criterion is the common interface satisfied by every criterion kind;
// it exists only to let a Test hold a heterogeneous criteria list, the
// way the original's Criterion enum does.
type Criterion interface {
	fmt.Stringer
	isCriterion()
}

// GPIOCriterion watches for any activity on a DUT pin. It is
// observational only: the evaluator reports it as Complete whether or
// not any Response was observed on the pin.
type GPIOCriterion struct {
	Pin signal.PinNo
}

func (GPIOCriterion) isCriterion() {}

func (c GPIOCriterion) String() string {
	return fmt.Sprintf("any output on device pin %d", c.Pin)
}

// Timing locates a serial-trace condition's expected arrival, either
// relative to the test's t0 or to the previous satisfied condition.
type Timing struct {
	relative bool
	offset   time.Duration
}

// Absolute builds a Timing measured from the start of the test.
func Absolute(offset time.Duration) Timing { return Timing{relative: false, offset: offset} }

// Relative builds a Timing measured from the previous matched event.
func Relative(offset time.Duration) Timing { return Timing{relative: true, offset: offset} }

// Offset returns the contained duration.
func (t Timing) Offset() time.Duration { return t.offset }

// IsRelative reports whether the Timing is measured from the previous
// event rather than from test start.
func (t Timing) IsRelative() bool { return t.relative }

func (t Timing) String() string {
	ref := "start of test"
	if t.relative {
		ref = "previous event"
	}
	return fmt.Sprintf("%s from %s", t.offset, ref)
}

// EnergyStat names the summary statistic an EnergyCriterion bounds.
type EnergyStat int

const (
	// EnergyTotal is the total energy consumed over the test, in mJ.
	EnergyTotal EnergyStat = iota
	// EnergyAverage is the mean consumption rate, in mJ/s.
	EnergyAverage
	// EnergyMax is the peak instantaneous sample.
	EnergyMax
	// EnergyMin is the lowest instantaneous sample (0 if no samples).
	EnergyMin
)

func (s EnergyStat) String() string {
	switch s {
	case EnergyTotal:
		return "total consumption"
	case EnergyAverage:
		return "average consumption rate"
	case EnergyMax:
		return "max consumption"
	case EnergyMin:
		return "min consumption"
	default:
		return "?"
	}
}

// EnergyCriterion bounds a named meter's summary statistic to an
// optional [min, max] range. A nil Min or Max leaves that side
// unbounded; if both are nil the criterion can never be violated
// (Violated returns violated=false, bounded=false).
type EnergyCriterion struct {
	Meter string
	Stat  EnergyStat
	Min   *float32
	Max   *float32
}

func (EnergyCriterion) isCriterion() {}

// Violated reports whether value falls outside the configured bounds.
// The second return is false when neither Min nor Max is set, meaning
// the criterion cannot be violated and the caller should treat it as
// always Complete.
func (c EnergyCriterion) Violated(value float32) (violated bool, bounded bool) {
	if c.Min == nil && c.Max == nil {
		return false, false
	}
	v := (c.Min != nil && value < *c.Min) || (c.Max != nil && value > *c.Max)
	return v, true
}

func (c EnergyCriterion) String() string {
	unit := "mJ/s"
	if c.Stat == EnergyTotal {
		unit = "mJ"
	}
	min := "-"
	if c.Min != nil {
		min = fmt.Sprintf("%.2f%s", *c.Min, unit)
	}
	max := "-"
	if c.Max != nil {
		max = fmt.Sprintf("%.2f%s", *c.Max, unit)
	}
	return fmt.Sprintf("'%s' %s (min: %s, max: %s)", c.Meter, c.Stat, min, max)
}

// SerialTraceCondition is one element of an ordered SerialTraceCriterion:
// an exact byte sequence to find, with an optional timing window.
type SerialTraceCondition struct {
	Data      []byte
	Timing    *Timing
	Tolerance time.Duration
}

// SatisfiedBy reports whether event's bytes exactly match the
// condition's data (length and elementwise).
func (c SerialTraceCondition) SatisfiedBy(event trace.Event) bool {
	if len(c.Data) != event.Len() {
		return false
	}
	data := event.Data()
	for i, b := range c.Data {
		if data[i] != b {
			return false
		}
	}
	return true
}

// feasible reports whether event both matches this condition's byte
// pattern and falls inside its timing window, given t0 and the
// previous match's offset tp.
func (c SerialTraceCondition) feasible(event trace.Event, t0 time.Duration, tp time.Duration) bool {
	if !c.SatisfiedBy(event) {
		return false
	}
	if c.Timing == nil {
		return true
	}

	var want time.Duration
	if c.Timing.IsRelative() {
		want = tp + c.Timing.Offset()
	} else {
		want = t0 + c.Timing.Offset()
	}

	since := event.Offset() - want
	if since < 0 {
		since = -since
	}
	return since < c.Tolerance
}

// seqCondition adapts a SerialTraceCondition into a seqmatch.Condition
// over trace.Event, passing the test's t0 as a fixed zero duration
// (event offsets are already relative to t0).
type seqCondition struct {
	cond SerialTraceCondition
}

func (sc seqCondition) Feasible(item trace.Event, prevMatch seqmatch.Time) bool {
	tp := prevMatch.(time.Duration)
	return sc.cond.feasible(item, 0, tp)
}

// SerialTraceCriterion is an ordered list of SerialTraceConditions that
// must each be satisfied, in order, by distinct events in a trace.
type SerialTraceCriterion struct {
	Conditions []SerialTraceCondition
}

func (SerialTraceCriterion) isCriterion() {}

// Align searches events for a subsequence satisfying every condition in
// order, returning the matched events on success. It delegates the
// search itself to seqmatch.Align; this method only adapts types.
func (c SerialTraceCriterion) Align(events []trace.Event) ([]trace.Event, bool) {
	conditions := make([]seqmatch.Condition[trace.Event], len(c.Conditions))
	for i, cond := range c.Conditions {
		conditions[i] = seqCondition{cond: cond}
	}

	matchTimeOf := func(e trace.Event) seqmatch.Time { return e.Offset() }

	return seqmatch.Align[trace.Event](time.Duration(0), conditions, events, matchTimeOf)
}

func (c SerialTraceCriterion) String() string {
	var b strings.Builder
	for _, cond := range c.Conditions {
		b.WriteString("\n  -> data: [ ")
		for _, by := range cond.Data {
			fmt.Fprintf(&b, "%02X ", by)
		}
		b.WriteString("]")
		if cond.Timing != nil {
			ref := "test start"
			if cond.Timing.IsRelative() {
				ref = "last event"
			}
			fmt.Fprintf(&b, " @ %s±%s from %s", cond.Timing.Offset(), cond.Tolerance, ref)
		}
	}
	return b.String()
}
