package xdispatch

import (
	"context"
)

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API represents the complete xdispatch surface.
type API interface {
	Dispatch(ctx context.Context, req DispatchRequest) (any, error)
	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

var _ HealthChecker = (*Dispatcher)(nil)
