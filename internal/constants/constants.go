// Package constants collects tuning knobs shared across the testbed
// packages so that timing assumptions live in one place.
package constants

import "time"

// Default test timing.
const (
	// DefaultTailDuration is appended to a test's last scheduled operation
	// to catch straggling DUT responses, per the Test model's default.
	DefaultTailDuration = 5 * time.Millisecond

	// UARTReadTimeout bounds each blocking UART read performed by the
	// serial-trace, memory, and extra-tracing workers.
	UARTReadTimeout = 100 * time.Millisecond

	// ApproxEnergyLoopPeriod is the empirically observed cost of one
	// iteration of the energy meter's tight sampling loop; used only to
	// pre-size the per-meter sample buffer before a test starts.
	ApproxEnergyLoopPeriod = 545 * time.Microsecond

	// TraceBufferSize is the pre-allocated size of the serial-trace and
	// memory-accounting read buffers.
	TraceBufferSize = 1 << 20 // 1 MiB
)

// UART line settings.
const (
	UARTBaudRate = 115200
	UARTDataBits = 8
)

// FixedWorkerCount is the number of statically allocated worker
// goroutines besides the executor's own thread of control: observer,
// energy meter, serial-trace, and memory-accounting.
const FixedWorkerCount = 4
