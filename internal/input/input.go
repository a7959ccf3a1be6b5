// Package input loads a declarative test suite from JSON into
// testdef.Test values. The wire format is intentionally minimal — just
// enough for the executor and cmd/ entry point to exercise the rest of
// the system end to end, not a general-purpose test-description
// language.
package input

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mdclyburn/flexbed/internal/criteria"
	"github.com/mdclyburn/flexbed/internal/signal"
	"github.com/mdclyburn/flexbed/internal/testdef"
)

type operationJSON struct {
	TimeMS uint64 `json:"time_ms"`
	Idle   *struct {
		LengthMS uint64 `json:"length_ms"`
	} `json:"idle,omitempty"`
	Input *struct {
		Pin     signal.PinNo `json:"pin"`
		Digital *bool        `json:"digital,omitempty"`
		Analog  *uint32      `json:"analog,omitempty"`
	} `json:"input,omitempty"`
}

type timingJSON struct {
	AbsoluteMS  *int64 `json:"absolute_ms,omitempty"`
	RelativeMS  *int64 `json:"relative_ms,omitempty"`
	ToleranceMS int64  `json:"tolerance_ms"`
}

type criterionJSON struct {
	GPIO *struct {
		Pin signal.PinNo `json:"pin"`
	} `json:"gpio,omitempty"`
	Energy *struct {
		Meter string   `json:"meter"`
		Stat  string   `json:"stat"`
		Min   *float32 `json:"min,omitempty"`
		Max   *float32 `json:"max,omitempty"`
	} `json:"energy,omitempty"`
	SerialTrace *struct {
		Conditions []struct {
			DataHex string      `json:"data_hex"`
			Timing  *timingJSON `json:"timing,omitempty"`
		} `json:"conditions"`
	} `json:"serial_trace,omitempty"`
}

type testJSON struct {
	ID           string          `json:"id"`
	AppIDs       []string        `json:"app_ids"`
	TracePoints  []string        `json:"trace_points"`
	Operations   []operationJSON `json:"operations"`
	Criteria     []criterionJSON `json:"criteria"`
	ResetOnStart bool            `json:"reset_on_start"`
}

type suiteJSON struct {
	Version int        `json:"_version"`
	Tests   []testJSON `json:"tests"`
}

// LoadSuite reads a declarative test suite from path.
func LoadSuite(path string) ([]testdef.Test, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: opening %s: %w", path, err)
	}
	defer f.Close()
	return DecodeSuite(f)
}

// DecodeSuite reads a declarative test suite from r.
func DecodeSuite(r io.Reader) ([]testdef.Test, error) {
	var suite suiteJSON
	if err := json.NewDecoder(r).Decode(&suite); err != nil {
		return nil, fmt.Errorf("input: decoding suite: %w", err)
	}
	if suite.Version != 1 {
		return nil, fmt.Errorf("input: unsupported suite version %d", suite.Version)
	}

	tests := make([]testdef.Test, 0, len(suite.Tests))
	for _, tj := range suite.Tests {
		t, err := buildTest(tj)
		if err != nil {
			return nil, fmt.Errorf("input: test %q: %w", tj.ID, err)
		}
		tests = append(tests, t)
	}
	return tests, nil
}

func buildTest(tj testJSON) (testdef.Test, error) {
	ops := make([]testdef.Operation, 0, len(tj.Operations))
	for _, oj := range tj.Operations {
		op := testdef.At(oj.TimeMS)
		switch {
		case oj.Idle != nil:
			op = op.WithAction(testdef.Idle(time.Duration(oj.Idle.LengthMS) * time.Millisecond))
		case oj.Input != nil:
			var sig signal.Signal
			switch {
			case oj.Input.Digital != nil:
				sig = signal.Digital(*oj.Input.Digital)
			case oj.Input.Analog != nil:
				sig = signal.Analog(*oj.Input.Analog)
			default:
				return testdef.Test{}, fmt.Errorf("operation at %dms: input has neither digital nor analog value", oj.TimeMS)
			}
			op = op.WithAction(testdef.Input(sig, oj.Input.Pin))
		}
		ops = append(ops, op)
	}

	crit := make([]criteria.Criterion, 0, len(tj.Criteria))
	for _, cj := range tj.Criteria {
		c, err := buildCriterion(cj)
		if err != nil {
			return testdef.Test{}, err
		}
		crit = append(crit, c)
	}

	return testdef.New(tj.ID, tj.AppIDs, tj.TracePoints, ops, crit, tj.ResetOnStart), nil
}

func buildCriterion(cj criterionJSON) (criteria.Criterion, error) {
	switch {
	case cj.GPIO != nil:
		return criteria.GPIOCriterion{Pin: cj.GPIO.Pin}, nil

	case cj.Energy != nil:
		stat, err := parseEnergyStat(cj.Energy.Stat)
		if err != nil {
			return nil, err
		}
		return criteria.EnergyCriterion{
			Meter: cj.Energy.Meter,
			Stat:  stat,
			Min:   cj.Energy.Min,
			Max:   cj.Energy.Max,
		}, nil

	case cj.SerialTrace != nil:
		conds := make([]criteria.SerialTraceCondition, 0, len(cj.SerialTrace.Conditions))
		for _, cond := range cj.SerialTrace.Conditions {
			data, err := hex.DecodeString(cond.DataHex)
			if err != nil {
				return nil, fmt.Errorf("serial trace condition: decoding data_hex %q: %w", cond.DataHex, err)
			}
			sc := criteria.SerialTraceCondition{Data: data}
			if cond.Timing != nil {
				var t criteria.Timing
				switch {
				case cond.Timing.AbsoluteMS != nil:
					t = criteria.Absolute(time.Duration(*cond.Timing.AbsoluteMS) * time.Millisecond)
				case cond.Timing.RelativeMS != nil:
					t = criteria.Relative(time.Duration(*cond.Timing.RelativeMS) * time.Millisecond)
				default:
					return nil, fmt.Errorf("serial trace condition: timing has neither absolute_ms nor relative_ms")
				}
				sc.Timing = &t
				sc.Tolerance = time.Duration(cond.Timing.ToleranceMS) * time.Millisecond
			}
			conds = append(conds, sc)
		}
		return criteria.SerialTraceCriterion{Conditions: conds}, nil

	default:
		return nil, fmt.Errorf("criterion has no recognized variant set")
	}
}

func parseEnergyStat(s string) (criteria.EnergyStat, error) {
	switch s {
	case "total":
		return criteria.EnergyTotal, nil
	case "average":
		return criteria.EnergyAverage, nil
	case "max":
		return criteria.EnergyMax, nil
	case "min":
		return criteria.EnergyMin, nil
	default:
		return 0, fmt.Errorf("unrecognized energy statistic %q", s)
	}
}
