// Package testdef defines a Test: a timeline of Operations to drive
// into the DUT and a set of criteria to evaluate the DUT's Responses
// against. Grounded on original_source/common/src/test.rs.
package testdef

import (
	"container/heap"
	"fmt"
	"strings"
	"time"

	"github.com/mdclyburn/flexbed/internal/constants"
	"github.com/mdclyburn/flexbed/internal/criteria"
	"github.com/mdclyburn/flexbed/internal/signal"
)

// Action is what an Operation does when its scheduled time arrives.
type Action struct {
	idle  bool
	idleD time.Duration
	sig   signal.Signal
	pin   signal.PinNo
}

// Idle builds an Action that does nothing but hold the timeline open
// for the given length before the next Operation may begin.
func Idle(length time.Duration) Action {
	return Action{idle: true, idleD: length}
}

// Input builds an Action that drives sig onto pin.
func Input(sig signal.Signal, pin signal.PinNo) Action {
	return Action{sig: sig, pin: pin}
}

// IsIdle reports whether the Action is an Idle.
func (a Action) IsIdle() bool { return a.idle }

func (a Action) String() string {
	if a.idle {
		return fmt.Sprintf("idle for %s", a.idleD)
	}
	return fmt.Sprintf("input %s, pin %d", a.sig, a.pin)
}

// Operation schedules an Action at an offset (in milliseconds) from the
// start of a test. An Operation with no Action is a no-op placeholder
// and is skipped by Execute; use Idle explicitly to hold the timeline
// open.
type Operation struct {
	TimeMS uint64
	Action *Action
}

// At creates an Operation with no action at the given offset.
func At(timeMS uint64) Operation { return Operation{TimeMS: timeMS} }

// WithAction attaches an Action to an Operation.
func (o Operation) WithAction(a Action) Operation {
	o.Action = &a
	return o
}

func (o Operation) String() string {
	act := "none"
	if o.Action != nil {
		act = o.Action.String()
	}
	return fmt.Sprintf("@%dms\taction: %s", o.TimeMS, act)
}

// operationHeap is a min-heap of Operations ordered by TimeMS,
// replacing the original's Reverse(BinaryHeap) with Go's container/heap.
type operationHeap []Operation

func (h operationHeap) Len() int            { return len(h) }
func (h operationHeap) Less(i, j int) bool  { return h[i].TimeMS < h[j].TimeMS }
func (h operationHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *operationHeap) Push(x interface{}) { *h = append(*h, x.(Operation)) }
func (h *operationHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Response is an output observed from the DUT.
type Response struct {
	Time   time.Time
	Pin    signal.PinNo
	Output signal.Signal
}

// Offset returns the Response's arrival time relative to t0, clamped to
// zero if the response somehow predates t0.
func (r Response) Offset(t0 time.Time) time.Duration {
	if r.Time.After(t0) {
		return r.Time.Sub(t0)
	}
	return 0
}

// Remapped returns a copy of r with Pin translated from a host pin to
// its mapped DUT pin. It panics if hostToTarget has no entry for r.Pin,
// mirroring the original's documented precondition that every observed
// pin must be part of the mapping.
func (r Response) Remapped(hostToTarget map[signal.PinNo]signal.PinNo) Response {
	target, ok := hostToTarget[r.Pin]
	if !ok {
		panic(fmt.Sprintf("testdef: no pin mapping for host pin %d", r.Pin))
	}
	out := r
	out.Pin = target
	return out
}

func (r Response) String() string {
	return fmt.Sprintf("response on P%02d %s", r.Pin, r.Output)
}

// Execution records when a test actually ran.
type Execution struct {
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the test ran for.
func (e Execution) Duration() time.Duration { return e.FinishedAt.Sub(e.StartedAt) }

// Test is a timeline of Operations plus the criteria to evaluate
// Responses against.
type Test struct {
	ID           string
	AppIDs       []string
	TracePoints  []string
	Operations   []Operation
	Criteria     []criteria.Criterion
	TailDuration time.Duration
	ResetOnStart bool
}

// New declares a Test with the default 5ms tail duration.
func New(id string, appIDs, tracePoints []string, ops []Operation, crit []criteria.Criterion, resetOnStart bool) Test {
	return Test{
		ID:           id,
		AppIDs:       append([]string(nil), appIDs...),
		TracePoints:  append([]string(nil), tracePoints...),
		Operations:   append([]Operation(nil), ops...),
		Criteria:     append([]criteria.Criterion(nil), crit...),
		TailDuration: constants.DefaultTailDuration,
		ResetOnStart: resetOnStart,
	}
}

// sortedOperations returns Operations in ascending time order via the
// same heap discipline the original uses, rather than a plain sort, to
// keep the later drive loop's structure recognizable.
func (t Test) sortedOperations() []Operation {
	h := make(operationHeap, len(t.Operations))
	copy(h, t.Operations)
	heap.Init(&h)

	out := make([]Operation, 0, len(h))
	for h.Len() > 0 {
		out = append(out, heap.Pop(&h).(Operation))
	}
	return out
}

// Driver drives a Digital Action's level onto pin; the executor wires
// this to the acquired host-side output lines.
type Driver func(pin signal.PinNo, high bool) error

// Execute spin-waits through the Operation timeline starting at t0,
// invoking drive for each Digital Input action it encounters. Only
// Digital signals can be driven; an Analog Input action is a programmer
// error in the test definition and panics, matching the original's
// "Unhandled input type" panic.
func (t Test) Execute(t0 time.Time, drive Driver) (Execution, error) {
	for _, op := range t.sortedOperations() {
		target := t0.Add(time.Duration(op.TimeMS) * time.Millisecond)
		for time.Now().Before(target) {
		}

		if op.Action == nil {
			continue
		}

		if op.Action.idle {
			until := target.Add(op.Action.idleD)
			for time.Now().Before(until) {
			}
			continue
		}

		if op.Action.sig.Kind() != signal.KindDigital {
			panic(fmt.Sprintf("testdef: unhandled input type on pin %d", op.Action.pin))
		}
		if err := drive(op.Action.pin, op.Action.sig.IsHigh()); err != nil {
			return Execution{}, err
		}
	}

	return Execution{StartedAt: t0, FinishedAt: time.Now()}, nil
}

// MaxRuntime is the offset from t0 at which the latest-ending Operation
// concludes (its time plus any Idle length), plus TailDuration, to catch
// straggling DUT responses. Operations without an Action are not counted.
func (t Test) MaxRuntime() time.Duration {
	var lastMS uint64
	for _, op := range t.Operations {
		if op.Action == nil {
			continue
		}
		end := op.TimeMS
		if op.Action.idle {
			end += uint64(op.Action.idleD.Milliseconds())
		}
		if end > lastMS {
			lastMS = end
		}
	}
	return time.Duration(lastMS)*time.Millisecond + t.TailDuration
}

// MaxSampleCount estimates how many energy samples a full test run
// will produce, used to pre-reserve per-meter sample buffers before the
// start rendezvous.
func (t Test) MaxSampleCount() int {
	period := constants.ApproxEnergyLoopPeriod
	return int((t.MaxRuntime()+period-1)/period) + 1
}

// GPIOCriteriaPins returns the DUT pins named by this test's GPIO
// criteria, in declaration order.
func (t Test) GPIOCriteriaPins() []signal.PinNo {
	var pins []signal.PinNo
	for _, c := range t.Criteria {
		if g, ok := c.(criteria.GPIOCriterion); ok {
			pins = append(pins, g.Pin)
		}
	}
	return pins
}

// EnergyMeters returns the distinct meter names this test's energy
// criteria reference.
func (t Test) EnergyMeters() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range t.Criteria {
		if e, ok := c.(criteria.EnergyCriterion); ok && !seen[e.Meter] {
			seen[e.Meter] = true
			out = append(out, e.Meter)
		}
	}
	return out
}

func (t Test) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Test: %s\n", t.ID)
	b.WriteString("=== Operation timeline\n")
	fmt.Fprintf(&b, "|%10s|%20s|\n", "time (ms)", "operation")
	b.WriteString("|----------+--------------------|\n")
	for _, op := range t.sortedOperations() {
		act := "-"
		if op.Action != nil {
			act = op.Action.String()
		}
		fmt.Fprintf(&b, "|%10d|%20s|\n", op.TimeMS, act)
	}
	b.WriteString("\n=== Criteria\n")
	for _, c := range t.Criteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return b.String()
}
