package worker

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"periph.io/x/conn/v3/gpio"

	"github.com/mdclyburn/flexbed/internal/criteria"
	"github.com/mdclyburn/flexbed/internal/currenttest"
	"github.com/mdclyburn/flexbed/internal/energymeter"
	"github.com/mdclyburn/flexbed/internal/memframe"
	"github.com/mdclyburn/flexbed/internal/observation"
	"github.com/mdclyburn/flexbed/internal/rendezvous"
	"github.com/mdclyburn/flexbed/internal/signal"
	"github.com/mdclyburn/flexbed/internal/testdef"
	"github.com/mdclyburn/flexbed/internal/trace"
)

// encodeFrame builds a wire-format memory-accounting frame, mirroring
// memframe's own test helper, which lives in a test file and cannot be
// imported here.
func encodeFrame(op memframe.Op, kind memframe.CounterKind, a, value uint32) []byte {
	header := byte(kind)
	if op == memframe.OpSet {
		header |= 0x80
	}
	buf := []byte{header}
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, a)
	buf = append(buf, payload...)
	valueBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(valueBytes, value)
	return append(buf, valueBytes...)
}

// fakePin is a minimal gpio.PinIn double: edges fire only when a test
// explicitly calls trigger, unlike a real line driven by the DUT.
type fakePin struct {
	mu    sync.Mutex
	level gpio.Level
	edge  gpio.Edge
	sig   chan struct{}

	inCalls int
}

func newFakePin() *fakePin { return &fakePin{sig: make(chan struct{}, 1)} }

func (p *fakePin) String() string         { return "fakePin" }
func (p *fakePin) Name() string           { return "fakePin" }
func (p *fakePin) Number() int            { return -1 }
func (p *fakePin) Function() string       { return "fakePin" }
func (p *fakePin) Halt() error            { return nil }
func (p *fakePin) Pull() gpio.Pull        { return gpio.PullNoChange }
func (p *fakePin) DefaultPull() gpio.Pull { return gpio.PullNoChange }

func (p *fakePin) Read() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *fakePin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inCalls++
	p.edge = edge
	return nil
}

func (p *fakePin) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-p.sig:
		return true
	case <-time.After(timeout):
		return false
	}
}

// trigger sets the pin's level and signals a waiting WaitForEdge call.
func (p *fakePin) trigger(high bool) {
	p.mu.Lock()
	if high {
		p.level = gpio.High
	} else {
		p.level = gpio.Low
	}
	p.mu.Unlock()
	select {
	case p.sig <- struct{}{}:
	default:
	}
}

var _ gpio.PinIn = (*fakePin)(nil)

type fakeMeter struct {
	power float32
	err   error
}

func (m fakeMeter) Current() (float32, error)       { return 0, m.err }
func (m fakeMeter) Power() (float32, error)         { return m.power, m.err }
func (m fakeMeter) CooldownDuration() time.Duration { return 0 }

var _ energymeter.Metering = fakeMeter{}

// fakePort is an in-memory Read source that yields one chunk per call.
type fakePort struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.chunks) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		return 0, errors.New("fakePort: exhausted")
	}
	chunk := p.chunks[0]
	p.chunks = p.chunks[1:]
	n := copy(buf, chunk)
	return n, nil
}

func runOneGeneration(b *rendezvous.Barrier, current *currenttest.Holder, test *testdef.Test) {
	current.Set(test)
	b.Wait() // R(prep)
	b.Wait() // R(start)
	b.Wait() // R(end)
}

func stopWorker(b *rendezvous.Barrier, current *currenttest.Holder) {
	current.Set(nil)
	b.Wait()
}

func TestObserverRunCollectsEdgeResponse(t *testing.T) {
	b := rendezvous.New(2)
	var current currenttest.Holder
	pin := newFakePin()
	results := make(chan []testdef.Response)

	o := &Observer{Outputs: map[signal.PinNo]gpio.PinIn{4: pin}, Results: results}
	go o.Run(b, &current)

	test := testdef.Test{
		ID:           "t1",
		Criteria:     []criteria.Criterion{criteria.GPIOCriterion{Pin: 4}},
		TailDuration: 50 * time.Millisecond,
	}

	current.Set(&test)
	b.Wait() // R(prep): observer arms pin 4

	b.Wait() // R(start)
	time.AfterFunc(10*time.Millisecond, func() { pin.trigger(true) })

	b.Wait() // R(end)
	responses := <-results

	require.Len(t, responses, 1)
	assert.Equal(t, signal.PinNo(4), responses[0].Pin)
	assert.True(t, responses[0].Output.IsHigh())

	stopWorker(b, &current)
}

func TestObserverRunWithNoCriteriaPinsProducesNoResponses(t *testing.T) {
	b := rendezvous.New(2)
	var current currenttest.Holder
	pin := newFakePin()
	results := make(chan []testdef.Response)

	o := &Observer{Outputs: map[signal.PinNo]gpio.PinIn{4: pin}, Results: results}
	go o.Run(b, &current)

	test := testdef.Test{ID: "t1"}
	runOneGeneration(b, &current, &test)
	responses := <-results
	assert.Empty(t, responses)

	stopWorker(b, &current)
}

func TestEnergyMeterRunSamplesConfiguredMeters(t *testing.T) {
	b := rendezvous.New(2)
	var current currenttest.Holder
	results := make(chan map[string][]observation.EnergySample)

	e := &EnergyMeter{
		Meters:  map[string]energymeter.Metering{"vbus": fakeMeter{power: 42}},
		Results: results,
	}
	go e.Run(b, &current)

	test := testdef.Test{
		ID:           "t1",
		Criteria:     []criteria.Criterion{criteria.EnergyCriterion{Meter: "vbus", Stat: criteria.EnergyTotal}},
		TailDuration: 10 * time.Millisecond,
	}
	current.Set(&test)
	b.Wait() // R(prep)
	b.Wait() // R(start)
	b.Wait() // R(end)
	samples := <-results

	require.Contains(t, samples, "vbus")
	assert.NotEmpty(t, samples["vbus"])
	for _, s := range samples["vbus"] {
		assert.Equal(t, float32(42), s.Value)
	}

	stopWorker(b, &current)
}

func TestEnergyMeterRunWithNoReferencedMetersYieldsEmptyMap(t *testing.T) {
	b := rendezvous.New(2)
	var current currenttest.Holder
	results := make(chan map[string][]observation.EnergySample)

	e := &EnergyMeter{Meters: map[string]energymeter.Metering{}, Results: results}
	go e.Run(b, &current)

	test := testdef.Test{ID: "t1"}
	runOneGeneration(b, &current, &test)
	samples := <-results
	assert.Empty(t, samples)

	stopWorker(b, &current)
}

func TestSerialTracerRunReconstructsEvents(t *testing.T) {
	b := rendezvous.New(2)
	var current currenttest.Holder
	results := make(chan []trace.Event)

	port := &fakePort{chunks: [][]byte{[]byte("hello")}}
	s := &SerialTracer{Port: port, Results: results}
	go s.Run(b, &current)

	test := testdef.Test{ID: "t1", TailDuration: 10 * time.Millisecond}
	runOneGeneration(b, &current, &test)
	events := <-results

	require.Len(t, events, 1)
	assert.Equal(t, []byte("hello"), events[0].Data())

	stopWorker(b, &current)
}

func TestMemoryTracerRunDecodesFrames(t *testing.T) {
	b := rendezvous.New(2)
	var current currenttest.Holder
	results := make(chan MemoryResult)

	frame := encodeFrame(memframe.OpAdd, memframe.CounterPCB, 1, 10)
	port := &fakePort{chunks: [][]byte{frame}}
	m := &MemoryTracer{Port: port, Results: results}
	go m.Run(b, &current)

	test := testdef.Test{ID: "t1", TailDuration: 10 * time.Millisecond}
	runOneGeneration(b, &current, &test)
	res := <-results

	require.Len(t, res.Frames, 1)
	assert.Equal(t, uint32(10), res.Frames[0].Value)
	assert.Zero(t, res.ResidualBytes)

	stopWorker(b, &current)
}

func TestExtraTracerRunLabelsAreIndependent(t *testing.T) {
	b := rendezvous.New(3)
	var current currenttest.Holder
	auxResults := make(chan []trace.Event)
	dbgResults := make(chan []trace.Event)

	aux := &ExtraTracer{Label: "aux", Port: &fakePort{chunks: [][]byte{[]byte("x")}}, Results: auxResults}
	dbg := &ExtraTracer{Label: "dbg", Port: &fakePort{chunks: [][]byte{[]byte("yz")}}, Results: dbgResults}
	go aux.Run(b, &current)
	go dbg.Run(b, &current)

	test := testdef.Test{ID: "t1", TailDuration: 10 * time.Millisecond}
	runOneGeneration(b, &current, &test)
	auxEvents := <-auxResults
	dbgEvents := <-dbgResults

	require.Len(t, auxEvents, 1)
	assert.Equal(t, []byte("x"), auxEvents[0].Data())
	require.Len(t, dbgEvents, 1)
	assert.Equal(t, []byte("yz"), dbgEvents[0].Data())

	stopWorker(b, &current)
}
