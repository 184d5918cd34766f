package xdispatch

import (
	"time"
)

// EventType enumerates dispatcher lifecycle events for the Observer pattern.
type EventType string

const (
	DispatchStart        EventType = "dispatch_start"
	DispatchHalted       EventType = "dispatch_halted"
	AggregateUnavailable EventType = "aggregate_unavailable"
	ExecutionDone        EventType = "execution_done"
	DispatchDone         EventType = "dispatch_done"
)

// Event carries telemetry for observers.
type Event struct {
	Type          EventType
	CommandUUID   string
	CorrelationID string
	AggregateType string
	Identity      string
	Outcome       OutcomeKind
	Duration      time.Duration
	Err           error

	// Internal: attached for async dispatch
	observers []Observer
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to full buffer
	Processed    uint64 // Events successfully processed
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics defines observable telemetry for the dispatcher.
type Metrics struct {
	Dispatched         uint64
	Succeeded          uint64
	Failed             uint64
	Halted             uint64
	Timeouts           uint64
	Crashes            uint64
	EventsDropped      uint64
	AvgExecutionTimeMs float64
}

// HealthStatus indicates dispatcher health for Kubernetes probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
