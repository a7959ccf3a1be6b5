package flexbed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordOutcome(t *testing.T) {
	m := NewMetrics()

	m.RecordOutcome(Pass, 3, 10*time.Millisecond)
	m.RecordOutcome(Fail, 2, 20*time.Millisecond)
	m.RecordOutcome(Error, 0, 0)
	m.RecordOutcome(Complete, 1, 5*time.Millisecond)

	assert.Equal(t, uint64(4), m.TestsRun.Load())
	assert.Equal(t, uint64(1), m.TestsPassed.Load())
	assert.Equal(t, uint64(1), m.TestsFailed.Load())
	assert.Equal(t, uint64(1), m.TestsErrored.Load())
	assert.Equal(t, uint64(1), m.TestsComplete.Load())
	assert.Equal(t, uint64(6), m.CriteriaEvaluated.Load())
}

func TestMetricsRecordTrace(t *testing.T) {
	m := NewMetrics()
	m.RecordTrace(100, 5, 20)
	m.RecordTrace(50, 2, 10)

	assert.Equal(t, uint64(150), m.SerialTraceBytes.Load())
	assert.Equal(t, uint64(7), m.MemoryFramesRead.Load())
	assert.Equal(t, uint64(30), m.EnergySamplesRead.Load())
}

func TestMetricsSnapshotPassRate(t *testing.T) {
	m := NewMetrics()
	m.RecordOutcome(Pass, 1, time.Millisecond)
	m.RecordOutcome(Pass, 1, time.Millisecond)
	m.RecordOutcome(Fail, 1, time.Millisecond)
	m.Stop()

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.TestsRun)
	assert.InDelta(t, 66.666, snap.PassRate, 0.01)
	assert.Greater(t, snap.AvgRunLatencyNs, uint64(0))
	assert.Greater(t, snap.UptimeNs, uint64(0))
}

func TestMetricsSnapshotEmptyRunHasZeroPassRate(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()
	assert.Equal(t, uint64(0), snap.TestsRun)
	assert.Equal(t, float64(0), snap.PassRate)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordOutcome(Pass, 1, time.Millisecond)
	m.RecordTrace(10, 1, 1)
	m.Stop()

	m.Reset()

	snap := m.Snapshot()
	assert.Equal(t, uint64(0), snap.TestsRun)
	assert.Equal(t, uint64(0), snap.SerialTraceBytes)
}
