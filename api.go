package xport

import (
	"context"
)

// Handler processes one message. Command handlers return a result for the caller;
// event handler results are discarded.
type Handler func(ctx context.Context, msg Message) (any, error)

// Middleware composes processing concerns around a Handler.
type Middleware func(next Handler) Handler

// Observer receives bus lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e BusEvent)
}

// HealthChecker provides health status for monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API represents the complete bus surface.
type API interface {
	Dispatcher
	Subscribe(sample Message, h Handler) error
	Seal()
	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}
