package evaluate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdclyburn/flexbed/internal/criteria"
	"github.com/mdclyburn/flexbed/internal/observation"
	"github.com/mdclyburn/flexbed/internal/testdef"
)

func ptr32(v float32) *float32 { return &v }

func TestFoldIsMonotonicByPriority(t *testing.T) {
	statuses := []Status{Complete, Pass, Fail, Error}
	for i, overall := range statuses {
		for j, next := range statuses {
			got := fold(overall, next)
			idx := i
			if j > idx {
				idx = j
			}
			want := statuses[idx]
			assert.Equal(t, want, got, "fold(%s, %s)", overall, next)
		}
	}
}

func TestEvaluateFailedObservationIsError(t *testing.T) {
	obs := observation.Failed(testdef.Test{ID: "t1"}, nil, errors.New("boom"))

	eval := Standard{}.Evaluate(obs)
	assert.Equal(t, Error, eval.Status)
	assert.Empty(t, eval.Outcomes)
}

func TestEvaluateNoCriteriaIsComplete(t *testing.T) {
	test := testdef.Test{ID: "t1"}
	obs := observation.Completed(test, nil, testdef.Execution{}, nil, nil, nil, nil, nil, 0)

	eval := Standard{}.Evaluate(obs)
	assert.Equal(t, Complete, eval.Status)
}

func TestEvaluateEnergyTotalWithinBounds(t *testing.T) {
	test := testdef.Test{
		ID: "t1",
		Criteria: []criteria.Criterion{
			criteria.EnergyCriterion{Meter: "vbus", Stat: criteria.EnergyTotal, Max: ptr32(1000)},
		},
	}
	start := time.Now()
	exec := testdef.Execution{StartedAt: start, FinishedAt: start.Add(time.Second)}

	samples := map[string][]observation.EnergySample{
		"vbus": {
			{At: start, Value: 10},
			{At: start.Add(500 * time.Millisecond), Value: 10},
		},
	}

	obs := observation.Completed(test, nil, exec, nil, nil, nil, nil, samples, 0)
	eval := Standard{}.Evaluate(obs)

	require.Len(t, eval.Outcomes, 1)
	assert.Equal(t, Pass, eval.Outcomes[0].Status)
	assert.Equal(t, Pass, eval.Status)
}

func TestEvaluateEnergyTotalExceedsBoundIsFail(t *testing.T) {
	test := testdef.Test{
		ID: "t1",
		Criteria: []criteria.Criterion{
			criteria.EnergyCriterion{Meter: "vbus", Stat: criteria.EnergyTotal, Max: ptr32(1)},
		},
	}
	start := time.Now()
	exec := testdef.Execution{StartedAt: start, FinishedAt: start.Add(time.Second)}

	samples := map[string][]observation.EnergySample{
		"vbus": {{At: start, Value: 1000}},
	}

	obs := observation.Completed(test, nil, exec, nil, nil, nil, nil, samples, 0)
	eval := Standard{}.Evaluate(obs)

	require.Len(t, eval.Outcomes, 1)
	assert.Equal(t, Fail, eval.Outcomes[0].Status)
	assert.Equal(t, Fail, eval.Status)
}

func TestEvaluateEnergyMaxAndMin(t *testing.T) {
	test := testdef.Test{
		ID: "t1",
		Criteria: []criteria.Criterion{
			criteria.EnergyCriterion{Meter: "vbus", Stat: criteria.EnergyMax, Max: ptr32(50)},
			criteria.EnergyCriterion{Meter: "vbus", Stat: criteria.EnergyMin, Min: ptr32(5)},
		},
	}
	samples := map[string][]observation.EnergySample{
		"vbus": {{Value: 10}, {Value: 40}, {Value: 3}},
	}

	obs := observation.Completed(test, nil, testdef.Execution{}, nil, nil, nil, nil, samples, 0)
	eval := Standard{}.Evaluate(obs)

	require.Len(t, eval.Outcomes, 2)
	assert.Equal(t, Pass, eval.Outcomes[0].Status) // max 40 <= 50
	assert.Equal(t, Fail, eval.Outcomes[1].Status) // min 3 < 5
	assert.Equal(t, Fail, eval.Status)
}

func TestEvaluateGPIOCriterionAlwaysComplete(t *testing.T) {
	test := testdef.Test{
		ID:       "t1",
		Criteria: []criteria.Criterion{criteria.GPIOCriterion{Pin: 4}},
	}
	obs := observation.Completed(test, nil, testdef.Execution{}, nil, nil, nil, nil, nil, 0)
	eval := Standard{}.Evaluate(obs)

	require.Len(t, eval.Outcomes, 1)
	assert.Equal(t, Complete, eval.Outcomes[0].Status)
}
