package flexbed

import (
	"sync/atomic"
	"time"
)

// Metrics tracks run-wide operational statistics for a Testbed,
// adapted from the teacher's atomic-counter Metrics struct: I/O op
// counters become test-outcome counters, byte counters become trace
// volume counters.
type Metrics struct {
	TestsRun      atomic.Uint64
	TestsPassed   atomic.Uint64
	TestsFailed   atomic.Uint64
	TestsErrored  atomic.Uint64
	TestsComplete atomic.Uint64

	CriteriaEvaluated atomic.Uint64

	SerialTraceBytes  atomic.Uint64
	MemoryFramesRead  atomic.Uint64
	EnergySamplesRead atomic.Uint64

	TotalRunLatencyNs atomic.Uint64
	RunCount          atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordOutcome records one evaluated test's terminal status and how
// long its execution phase took.
func (m *Metrics) RecordOutcome(status Status, criteriaCount int, runDuration time.Duration) {
	m.TestsRun.Add(1)
	m.CriteriaEvaluated.Add(uint64(criteriaCount))
	m.TotalRunLatencyNs.Add(uint64(runDuration.Nanoseconds()))
	m.RunCount.Add(1)

	switch status {
	case Pass:
		m.TestsPassed.Add(1)
	case Fail:
		m.TestsFailed.Add(1)
	case Error:
		m.TestsErrored.Add(1)
	case Complete:
		m.TestsComplete.Add(1)
	}
}

// RecordTrace records how much serial-trace data, how many decoded
// memory-accounting frames, and how many energy samples one test
// produced.
func (m *Metrics) RecordTrace(serialBytes uint64, memFrames uint64, energySamples uint64) {
	m.SerialTraceBytes.Add(serialBytes)
	m.MemoryFramesRead.Add(memFrames)
	m.EnergySamplesRead.Add(energySamples)
}

// Stop marks the run as finished.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics' counters plus
// derived statistics.
type MetricsSnapshot struct {
	TestsRun      uint64
	TestsPassed   uint64
	TestsFailed   uint64
	TestsErrored  uint64
	TestsComplete uint64

	CriteriaEvaluated uint64

	SerialTraceBytes  uint64
	MemoryFramesRead  uint64
	EnergySamplesRead uint64

	AvgRunLatencyNs uint64
	UptimeNs        uint64
	PassRate        float64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		TestsRun:          m.TestsRun.Load(),
		TestsPassed:       m.TestsPassed.Load(),
		TestsFailed:       m.TestsFailed.Load(),
		TestsErrored:      m.TestsErrored.Load(),
		TestsComplete:     m.TestsComplete.Load(),
		CriteriaEvaluated: m.CriteriaEvaluated.Load(),
		SerialTraceBytes:  m.SerialTraceBytes.Load(),
		MemoryFramesRead:  m.MemoryFramesRead.Load(),
		EnergySamplesRead: m.EnergySamplesRead.Load(),
	}

	runCount := m.RunCount.Load()
	if runCount > 0 {
		snap.AvgRunLatencyNs = m.TotalRunLatencyNs.Load() / runCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.TestsRun > 0 {
		snap.PassRate = float64(snap.TestsPassed) / float64(snap.TestsRun) * 100.0
	}

	return snap
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.TestsRun.Store(0)
	m.TestsPassed.Store(0)
	m.TestsFailed.Store(0)
	m.TestsErrored.Store(0)
	m.TestsComplete.Store(0)
	m.CriteriaEvaluated.Store(0)
	m.SerialTraceBytes.Store(0)
	m.MemoryFramesRead.Store(0)
	m.EnergySamplesRead.Store(0)
	m.TotalRunLatencyNs.Store(0)
	m.RunCount.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}
