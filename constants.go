package flexbed

import "github.com/mdclyburn/flexbed/internal/constants"

// Re-export constants for public API
const (
	DefaultTailDuration    = constants.DefaultTailDuration
	UARTReadTimeout        = constants.UARTReadTimeout
	ApproxEnergyLoopPeriod = constants.ApproxEnergyLoopPeriod
	TraceBufferSize        = constants.TraceBufferSize
	UARTBaudRate           = constants.UARTBaudRate
	UARTDataBits           = constants.UARTDataBits
	FixedWorkerCount       = constants.FixedWorkerCount
)
