package flexbed

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/mdclyburn/flexbed/internal/platform"
)

// MockPlatform is a test double for platform.Support, following the
// MockBackend pattern: it tracks every call for assertion and lets a
// test script inject failures before exercising the executor without
// real DUT hardware.
type MockPlatform struct {
	mu sync.Mutex

	loaded map[string]struct{}
	spec   platform.Spec

	loadErr       error
	unloadErr     error
	reconfigErr   error
	loadCalls     []string
	unloadCalls   []string
	reconfigCalls [][]string
}

// NewMockPlatform creates a MockPlatform with nothing loaded.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{loaded: make(map[string]struct{})}
}

// Load implements platform.Support.
func (p *MockPlatform) Load(appID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loadCalls = append(p.loadCalls, appID)
	if p.loadErr != nil {
		return p.loadErr
	}
	p.loaded[appID] = struct{}{}
	return nil
}

// Unload implements platform.Support.
func (p *MockPlatform) Unload(appID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unloadCalls = append(p.unloadCalls, appID)
	if p.unloadErr != nil {
		return p.unloadErr
	}
	delete(p.loaded, appID)
	return nil
}

// Loaded implements platform.Support.
func (p *MockPlatform) Loaded() map[string]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]struct{}, len(p.loaded))
	for k := range p.loaded {
		out[k] = struct{}{}
	}
	return out
}

// Reconfigure implements platform.Support.
func (p *MockPlatform) Reconfigure(tracePoints []string) (platform.Spec, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reconfigCalls = append(p.reconfigCalls, append([]string(nil), tracePoints...))
	if p.reconfigErr != nil {
		return platform.Spec{}, p.reconfigErr
	}

	tps := make([]platform.TracePoint, 0, len(tracePoints))
	for i, name := range tracePoints {
		tps = append(tps, platform.TracePoint{Name: name, Value: uint16(i)})
	}
	p.spec = platform.Spec{Version: 1, TracePoints: tps}
	return p.spec, nil
}

// SetLoadError makes every subsequent Load call fail with err.
func (p *MockPlatform) SetLoadError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadErr = err
}

// SetReconfigureError makes every subsequent Reconfigure call fail with err.
func (p *MockPlatform) SetReconfigureError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconfigErr = err
}

// LoadCalls returns the app IDs passed to Load, in call order.
func (p *MockPlatform) LoadCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.loadCalls...)
}

// ReconfigureCalls returns the trace-point sets passed to Reconfigure,
// in call order.
func (p *MockPlatform) ReconfigureCalls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]string, len(p.reconfigCalls))
	copy(out, p.reconfigCalls)
	return out
}

var _ platform.Support = (*MockPlatform)(nil)

// MockEnergyMeter is a test double for energymeter.Metering that
// replays a fixed sequence of current/power readings instead of
// talking to an INA219 over I2C.
type MockEnergyMeter struct {
	mu        sync.Mutex
	currentMA []float32
	powerMW   []float32
	idx       int
	cooldown  time.Duration
	err       error
}

// NewMockEnergyMeter creates a meter that cycles through the given
// power readings (mJ/s) each call to Power, holding the last value
// once exhausted.
func NewMockEnergyMeter(powerMW []float32) *MockEnergyMeter {
	return &MockEnergyMeter{powerMW: append([]float32(nil), powerMW...)}
}

// Current reports a fixed sequence of readings, or SetError's error.
func (m *MockEnergyMeter) Current() (float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.next(m.currentMA), nil
}

// Power reports a fixed sequence of readings, or SetError's error.
func (m *MockEnergyMeter) Power() (float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.next(m.powerMW), nil
}

func (m *MockEnergyMeter) next(series []float32) float32 {
	if len(series) == 0 {
		return 0
	}
	i := m.idx
	if i >= len(series) {
		i = len(series) - 1
	} else {
		m.idx++
	}
	return series[i]
}

// CooldownDuration implements energymeter.Metering.
func (m *MockEnergyMeter) CooldownDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldown
}

// SetError makes every subsequent read fail with err.
func (m *MockEnergyMeter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// MockPin is a test double for a single periph.io gpio.PinIO, useful
// for driving testdef.Execute or an Observer loop without real
// hardware, following the same call-tracking style as MockPlatform.
type MockPin struct {
	mu    sync.Mutex
	name  string
	level gpio.Level
	edge  gpio.Edge
	pull  gpio.Pull

	edgeSignal chan struct{}

	outCalls int
	inCalls  int
}

// NewMockPin creates a MockPin starting at Low.
func NewMockPin(name string) *MockPin {
	return &MockPin{name: name, edgeSignal: make(chan struct{}, 1)}
}

func (p *MockPin) String() string { return p.name }
func (p *MockPin) Name() string   { return p.name }
func (p *MockPin) Number() int    { return -1 }
func (p *MockPin) Function() string {
	return fmt.Sprintf("MockPin(%s)", p.name)
}

// Halt implements conn.Resource.
func (p *MockPin) Halt() error { return nil }

// Read returns the pin's current level.
func (p *MockPin) Read() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Out drives a new level, tracking the call and firing any armed edge.
func (p *MockPin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.outCalls++
	changed := l != p.level
	p.level = l

	if changed && edgeMatches(p.edge, l) {
		select {
		case p.edgeSignal <- struct{}{}:
		default:
		}
	}
	return nil
}

// In arms the pin for edge detection with the given pull, tracking the call.
func (p *MockPin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inCalls++
	p.pull = pull
	p.edge = edge
	return nil
}

// WaitForEdge blocks until Out triggers an armed edge or timeout elapses.
func (p *MockPin) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-p.edgeSignal:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Pull returns the last pull configuration passed to In.
func (p *MockPin) Pull() gpio.Pull { return p.pull }

// DefaultPull reports PullNoChange, since a mock pin has no electrical default.
func (p *MockPin) DefaultPull() gpio.Pull { return gpio.PullNoChange }

// OutCalls returns how many times Out was called.
func (p *MockPin) OutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outCalls
}

// InCalls returns how many times In was called.
func (p *MockPin) InCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inCalls
}

func edgeMatches(armed gpio.Edge, level gpio.Level) bool {
	switch armed {
	case gpio.BothEdges:
		return true
	case gpio.RisingEdge:
		return level == gpio.High
	case gpio.FallingEdge:
		return level == gpio.Low
	default:
		return false
	}
}

var (
	_ gpio.PinIO = (*MockPin)(nil)
)
