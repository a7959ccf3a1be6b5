// Package evaluate judges an Observation against its Test's criteria,
// producing a Status and a per-criterion Outcome. Grounded on
// original_source/common/src/evaluation.rs: the same fold over
// Complete/Pass/Fail/Error, the same per-stat energy formulas, and the
// same serial-trace alignment call.
package evaluate

import (
	"fmt"
	"strings"
	"time"

	"github.com/mdclyburn/flexbed/internal/criteria"
	"github.com/mdclyburn/flexbed/internal/observation"
)

// Status is the judged outcome of a test or one of its criteria, a
// four-point lattice Complete < Pass < Fail < Error.
type Status int

const (
	Complete Status = iota
	Pass
	Fail
	Error
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "Complete"
	case Pass:
		return "Pass"
	case Fail:
		return "Fail"
	case Error:
		return "Error"
	default:
		return "?"
	}
}

// fold combines the running overall status with one more criterion's
// status: Complete yields to anything; Pass yields only to Fail/Error;
// Fail yields only to Error; Error yields to nothing. Because the four
// statuses are already ordered by priority, this is simply max — kept
// as an explicit match (rather than collapsing to an `if b > a`) to
// read the same way the original's match arms do.
func fold(overall, next Status) Status {
	switch overall {
	case Complete:
		return next
	case Pass:
		if next == Fail || next == Error {
			return next
		}
		return Pass
	case Fail:
		if next == Error {
			return Error
		}
		return Fail
	case Error:
		return Error
	default:
		return overall
	}
}

// Outcome is the judgment of a single criterion.
type Outcome struct {
	Criterion criteria.Criterion
	Status    Status
	Message   string
}

// Evaluation is the judgment of a whole Observation.
type Evaluation struct {
	Status   Status
	Outcomes []Outcome
	Data     observation.Observation
}

func (e Evaluation) String() string {
	id := e.Data.Test.ID
	if e.Status == Error {
		return fmt.Sprintf("%s\tError (%v)\n", id, e.Data.ExecutionErr)
	}
	return fmt.Sprintf("%s\t%s (in %s)\n", id, e.Status, e.Data.Execution.Duration())
}

// Evaluator judges an Observation.
type Evaluator interface {
	Evaluate(obs observation.Observation) Evaluation
}

// Standard is the built-in Evaluator.
type Standard struct{}

func (Standard) Evaluate(obs observation.Observation) Evaluation {
	if obs.Failed() {
		return Evaluation{Status: Error, Data: obs}
	}

	outcomes := make([]Outcome, 0, len(obs.Test.Criteria))
	overall := Complete
	for _, c := range obs.Test.Criteria {
		o := evaluateCriterion(c, obs)
		outcomes = append(outcomes, o)
		overall = fold(overall, o.Status)
	}

	return Evaluation{Status: overall, Outcomes: outcomes, Data: obs}
}

func evaluateCriterion(c criteria.Criterion, obs observation.Observation) Outcome {
	switch crit := c.(type) {
	case criteria.GPIOCriterion:
		return Outcome{Criterion: c, Status: Complete}

	case criteria.EnergyCriterion:
		return evaluateEnergy(crit, obs)

	case criteria.SerialTraceCriterion:
		return evaluateSerialTrace(crit, obs)

	default:
		return Outcome{Criterion: c, Status: Error, Message: "unrecognized criterion kind"}
	}
}

func statusFromViolation(c criteria.EnergyCriterion, value float32) Status {
	violated, bounded := c.Violated(value)
	if !bounded {
		return Complete
	}
	if violated {
		return Fail
	}
	return Pass
}

func evaluateEnergy(c criteria.EnergyCriterion, obs observation.Observation) Outcome {
	samples := obs.EnergySamples[c.Meter]

	switch c.Stat {
	case criteria.EnergyTotal:
		duration := obs.Execution.Duration()
		n := len(samples)
		if n == 0 {
			return Outcome{Criterion: c, Status: statusFromViolation(c, 0), Message: "0.00mJ consumed"}
		}
		sliceTime := duration / time.Duration(n)
		rateToTotal := float64(sliceTime.Microseconds()) / float64(time.Second.Microseconds())

		var total float64
		for _, s := range samples {
			total += float64(s.Value) * rateToTotal
		}

		status := statusFromViolation(c, float32(total))
		return Outcome{Criterion: c, Status: status, Message: fmt.Sprintf("%.2fmJ consumed", total)}

	case criteria.EnergyAverage:
		if len(samples) == 0 {
			return Outcome{Criterion: c, Status: statusFromViolation(c, 0), Message: "0.00mJ/s average"}
		}
		var sum float32
		for _, s := range samples {
			sum += s.Value
		}
		avg := sum / float32(len(samples))
		status := statusFromViolation(c, avg)
		return Outcome{Criterion: c, Status: status, Message: fmt.Sprintf("%.2fmJ/s average", avg)}

	case criteria.EnergyMax:
		var max float32
		for _, s := range samples {
			if s.Value > max {
				max = s.Value
			}
		}
		status := statusFromViolation(c, max)
		return Outcome{Criterion: c, Status: status, Message: fmt.Sprintf("%.2fmJ/s max", max)}

	case criteria.EnergyMin:
		var min float32
		if len(samples) > 0 {
			min = samples[0].Value
			for _, s := range samples[1:] {
				if s.Value < min {
					min = s.Value
				}
			}
		}
		status := statusFromViolation(c, min)
		return Outcome{Criterion: c, Status: status, Message: fmt.Sprintf("%.2fmJ/s min", min)}

	default:
		return Outcome{Criterion: c, Status: Error, Message: "unrecognized energy statistic"}
	}
}

func evaluateSerialTrace(c criteria.SerialTraceCriterion, obs observation.Observation) Outcome {
	matches, ok := c.Align(obs.Traces)
	if !ok {
		return Outcome{Criterion: c, Status: Fail}
	}

	var b strings.Builder
	b.WriteString("Satisfied by: ")
	for i, ev := range matches {
		fmt.Fprintf(&b, "@%s", ev.Offset())
		if i < len(matches)-1 {
			b.WriteString(" -> ")
		}
	}

	return Outcome{Criterion: c, Status: Pass, Message: b.String()}
}
