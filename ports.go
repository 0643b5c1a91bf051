package xport

import "context"

// Dispatcher is the part of the bus driver adapters need.
type Dispatcher interface {
	Handle(ctx context.Context, msg Message) (any, error)
}

// DatabaseAdapter is a storage technology. R is the mutation-side repository handed out
// by units of work, V the read-only view.
type DatabaseAdapter[R, V any] interface {
	// SetUp creates whatever the technology needs (schema, store). Idempotent.
	SetUp(ctx context.Context) error
	UnitOfWorkManager() UnitOfWorkManager[R]
	View() V
	Close(ctx context.Context) error
}

// InterfaceAdapter is a driver adapter: it receives requests from the outside and turns
// them into messages on the bus.
type InterfaceAdapter[V any] interface {
	SetMessageBus(bus Dispatcher)
	SetView(view V)
	// Start begins listening and returns once the listener is running.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// SenderAdapter is a driven adapter for outbound notifications.
type SenderAdapter interface {
	Send(ctx context.Context, payload string) error
	Close(ctx context.Context) error
}
