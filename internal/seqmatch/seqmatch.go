// Package seqmatch implements the bounded depth-first backtracking
// alignment used to check an ordered list of conditions against a
// chronological event stream: try the earliest feasible event for the
// current condition, recurse on the remainder, and backtrack to the
// next feasible event if the recursion fails. Grounded on
// original_source/common/src/criteria.rs's SerialTraceCriterion::rec_align,
// generalized here over an Item/Condition pair so internal/criteria can
// instantiate it without duplicating the control flow.
package seqmatch

// Condition is satisfied by zero or more items in an event stream. Feasible
// reports whether item satisfies this condition; prevMatch is the match
// time of the previous satisfied condition (or the sequence's t0 for the
// first condition).
type Condition[E any] interface {
	Feasible(item E, prevMatch Time) bool
}

// Time is an opaque comparable timestamp; seqmatch never interprets it
// beyond passing it between conditions, so callers can use time.Time,
// a Duration offset, or a synthetic counter.
type Time interface{}

// MatchTimeOf extracts the match time to carry forward once an item has
// satisfied a condition.
type MatchTimeOf[E any] func(item E) Time

// Align attempts to satisfy conditions, in order, against events, in
// order, via earliest-feasible-choice-then-backtrack search. On success
// it returns the chosen event for each condition, in the same order as
// conditions. On exhaustion it returns (nil, false): no alignment exists.
//
// Worst case is O(m^n) for n conditions and m events (full backtracking);
// typical behavior is close to O(n*m) because most conditions have few
// feasible candidates.
func Align[E any](t0 Time, conditions []Condition[E], events []E, matchTimeOf MatchTimeOf[E]) ([]E, bool) {
	matches, ok := align(t0, conditions, events, matchTimeOf)
	if !ok {
		return nil, false
	}
	return matches, true
}

func align[E any](prevMatch Time, conditions []Condition[E], events []E, matchTimeOf MatchTimeOf[E]) ([]E, bool) {
	if len(conditions) == 0 {
		return []E{}, true
	}

	condition := conditions[0]
	for idx, event := range events {
		if !condition.Feasible(event, prevMatch) {
			continue
		}

		rest, ok := align(matchTimeOf(event), conditions[1:], events[idx+1:], matchTimeOf)
		if !ok {
			continue
		}

		matches := make([]E, 0, len(rest)+1)
		matches = append(matches, event)
		matches = append(matches, rest...)
		return matches, true
	}

	return nil, false
}
