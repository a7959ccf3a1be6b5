package seqmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// intCondition is satisfied by any event strictly greater than min,
// ignoring prevMatch.
type intCondition struct {
	min int
}

func (c intCondition) Feasible(item int, _ Time) bool {
	return item > c.min
}

// orderedCondition is satisfied by events strictly after the previous
// match's time, exercising the prevMatch threading.
type orderedCondition struct{}

func (orderedCondition) Feasible(item int, prevMatch Time) bool {
	return item > prevMatch.(int)
}

// windowCondition is satisfied by events that follow the previous match
// by at most gap, the shape of a timing-toleranced relative condition.
type windowCondition struct {
	gap int
}

func (c windowCondition) Feasible(item int, prevMatch Time) bool {
	prev := prevMatch.(int)
	return item > prev && item-prev <= c.gap
}

func matchTimeOfInt(item int) Time { return item }

func TestAlignFindsEarliestFeasibleChoice(t *testing.T) {
	events := []int{1, 5, 10, 15, 20}
	conditions := []Condition[int]{intCondition{min: 3}, intCondition{min: 12}}

	matches, ok := Align[int](0, conditions, events, matchTimeOfInt)
	require.True(t, ok)
	assert.Equal(t, []int{5, 15}, matches)
}

func TestAlignBacktracksWhenEarliestChoiceBlocksLaterCondition(t *testing.T) {
	// The earliest event for condition 1 (1) leaves no event within 3 of
	// it for condition 2, so the search must back up, choose 10 for
	// condition 1, and then 12 for condition 2.
	events := []int{1, 10, 12}
	conditions := []Condition[int]{intCondition{min: 0}, windowCondition{gap: 3}}

	matches, ok := Align[int](0, conditions, events, matchTimeOfInt)
	require.True(t, ok)
	assert.Equal(t, []int{10, 12}, matches)
}

func TestAlignOrderedConditionsRequireDistinctEvents(t *testing.T) {
	events := []int{1, 2, 3}
	conditions := []Condition[int]{orderedCondition{}, orderedCondition{}, orderedCondition{}}

	matches, ok := Align[int](0, conditions, events, matchTimeOfInt)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, matches)
}

func TestAlignFailsWhenNotEnoughFeasibleEvents(t *testing.T) {
	events := []int{1, 2}
	conditions := []Condition[int]{intCondition{min: 0}, intCondition{min: 0}, intCondition{min: 0}}

	matches, ok := Align[int](0, conditions, events, matchTimeOfInt)
	assert.False(t, ok)
	assert.Nil(t, matches)
}

func TestAlignEmptyConditionsAlwaysSucceeds(t *testing.T) {
	matches, ok := Align[int](0, nil, []int{1, 2, 3}, matchTimeOfInt)
	require.True(t, ok)
	assert.Empty(t, matches)
}

func TestAlignPreservesConditionOrderInResult(t *testing.T) {
	events := []int{10, 20, 30, 40}
	conditions := []Condition[int]{intCondition{min: 25}, intCondition{min: 5}}

	// Condition order in the result always follows conditions' order,
	// even though intCondition{min: 5} would be satisfiable earlier in
	// the stream -- it must still appear second because it is the
	// second condition.
	matches, ok := Align[int](0, conditions, events, matchTimeOfInt)
	require.True(t, ok)
	require.Len(t, matches, 2)
	assert.Greater(t, matches[0], 25)
}
