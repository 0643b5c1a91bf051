package xport

import (
	"errors"
	"fmt"
)

var (
	// ErrBusSealed is returned by Subscribe once the wiring phase is over.
	ErrBusSealed = errors.New("xport: bus is sealed")
	// ErrNilHandler rejects nil handlers at subscribe time.
	ErrNilHandler = errors.New("xport: handler must not be nil")
	// ErrNilMessage rejects nil samples and nil dispatches.
	ErrNilMessage = errors.New("xport: message must not be nil")
	// ErrDispatchDepthExceeded guards against handlers that keep re-dispatching.
	ErrDispatchDepthExceeded = errors.New("xport: dispatch depth exceeded")
	// ErrHandlerPanic is reported when a handler panicked and was recovered.
	ErrHandlerPanic = errors.New("xport: handler panic")
	// ErrUnitOfWorkClosed is returned by repositories used after their unit was released.
	ErrUnitOfWorkClosed = errors.New("xport: unit of work is closed")
	// ErrObserverPoolShutdownTimeout is returned when queued observer events could not drain in time.
	ErrObserverPoolShutdownTimeout = errors.New("xport: observer pool shutdown timeout")
)

// DuplicateCommandHandlerError is raised when a second handler subscribes to a command.
type DuplicateCommandHandlerError struct {
	Message string
}

func (e *DuplicateCommandHandlerError) Error() string {
	return fmt.Sprintf("xport: duplicate command handler: %s already has a handler subscribed", e.Message)
}

// HandlerNotFoundError is raised when a command is dispatched without a subscriber.
type HandlerNotFoundError struct {
	Message string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("xport: no handler found for command %s", e.Message)
}

// AdapterResolutionError reports a technology that has no, or more than one, registered
// builder/adapter for its capability tag.
type AdapterResolutionError struct {
	Technology string
	Context    Context
	// Component is "builder" or "adapter".
	Component string
	// Matches is the number of registrations found for the tag.
	Matches int
	Err     error
}

func (e *AdapterResolutionError) Error() string {
	reason := "no " + e.Component + " registered"
	switch {
	case e.Err != nil:
		reason = e.Err.Error()
	case e.Matches > 1:
		reason = fmt.Sprintf("%d %ss registered, expected exactly one", e.Matches, e.Component)
	}
	return fmt.Sprintf("xport: cannot resolve technology %q in context %q: %s", e.Technology, e.Context, reason)
}

func (e *AdapterResolutionError) Unwrap() error { return e.Err }

// UnitOfWorkError wraps a failed commit or rollback.
type UnitOfWorkError struct {
	Op  string
	Err error
}

func (e *UnitOfWorkError) Error() string {
	return fmt.Sprintf("xport: unit of work %s failed: %v", e.Op, e.Err)
}

func (e *UnitOfWorkError) Unwrap() error { return e.Err }
