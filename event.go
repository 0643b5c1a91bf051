package xport

import "time"

// BusEventType enumerates bus lifecycle events for observers.
type BusEventType string

const (
	EventSubscribe     BusEventType = "subscribe"
	EventDispatchStart BusEventType = "dispatch_start"
	EventDispatchDone  BusEventType = "dispatch_done"
	EventHandlerError  BusEventType = "handler_error"
)

// BusEvent carries telemetry for observers.
type BusEvent struct {
	Type       BusEventType
	DispatchID string
	Message    string
	Kind       Kind
	Depth      int
	// Handlers is the number of subscribers, or the failing handler's index for
	// EventHandlerError.
	Handlers   int
	Duration   time.Duration
	Err        error

	// Internal: attached for async dispatch
	observers []Observer
}
