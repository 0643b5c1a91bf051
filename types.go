package xport

import "time"

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to full buffer
	Processed    uint64 // Events successfully processed
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Dispatched          uint64
	Commands            uint64
	Events              uint64
	HandlerCalls        uint64
	NotFound            uint64
	Errors              uint64
	EventsDropped       uint64
	AvgProcessingTimeMs float64
}

// HealthStatus indicates bus health for probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
