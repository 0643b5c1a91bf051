package xport

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ API = (*Bus)(nil)
var _ HealthChecker = (*Bus)(nil)

// Bus routes commands to their single handler and events to all of theirs. Dispatch is
// synchronous and runs on the caller's goroutine; no lock is held while handlers run, so
// a handler may dispatch again.
type Bus struct {
	mu     sync.RWMutex
	routes map[reflect.Type]*route
	sealed atomic.Bool

	clock        xclock.Clock
	logger       *xlog.Logger
	middlewares  []Middleware
	maxDepth     int
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer
	metrics      *busMetrics
	closeOnce    sync.Once
}

// route is replaced, never mutated, once published in Bus.routes.
type route struct {
	kind     Kind
	name     string
	handlers []Handler
}

// busMetrics uses lock-free atomics.
type busMetrics struct {
	dispatched   atomic.Uint64
	commands     atomic.Uint64
	events       atomic.Uint64
	handlerCalls atomic.Uint64
	notFound     atomic.Uint64
	errorCount   atomic.Uint64
	processingNs atomic.Int64
}

// Subscribe binds h to the type of sample. A command type accepts one handler only; a
// second Subscribe returns *DuplicateCommandHandlerError and leaves the first in place.
// Event handlers run in subscription order.
func (b *Bus) Subscribe(sample Message, h Handler) error {
	if isNil(sample) {
		return ErrNilMessage
	}
	if h == nil {
		return ErrNilHandler
	}
	if b.sealed.Load() {
		return ErrBusSealed
	}

	t := messageType(sample)
	kind := sample.MessageKind()

	// Always enable panic recovery first.
	wh := Chain(RecoveryMiddleware()(h), b.middlewares...)

	b.mu.Lock()
	current := b.routes[t]
	if current != nil && kind == KindCommand && len(current.handlers) > 0 {
		b.mu.Unlock()
		return &DuplicateCommandHandlerError{Message: t.String()}
	}
	next := &route{kind: kind, name: t.String()}
	if current != nil {
		next.handlers = make([]Handler, len(current.handlers), len(current.handlers)+1)
		copy(next.handlers, current.handlers)
	}
	next.handlers = append(next.handlers, wh)
	b.routes[t] = next
	b.mu.Unlock()

	b.notify(BusEvent{Type: EventSubscribe, Message: next.name, Kind: kind, Handlers: len(next.handlers)})
	return nil
}

// Handle dispatches msg. For a command it returns the handler's result, or
// *HandlerNotFoundError when nothing subscribed. For an event every handler runs, results
// are discarded and handler errors are joined; an event nobody listens to is a no-op.
func (b *Bus) Handle(ctx context.Context, msg Message) (any, error) {
	if isNil(msg) {
		return nil, ErrNilMessage
	}
	if ctx == nil {
		ctx = context.Background()
	}

	depth := DispatchDepth(ctx)
	if depth >= b.maxDepth {
		b.metrics.errorCount.Add(1)
		return nil, fmt.Errorf("%w: %s at depth %d", ErrDispatchDepthExceeded, MessageName(msg), depth)
	}
	hctx := injectDepth(ctx, depth+1)
	hctx = injectLogger(hctx, b.logger)
	hctx = injectClock(hctx, b.clock)

	t := messageType(msg)
	b.mu.RLock()
	r := b.routes[t]
	b.mu.RUnlock()

	var handlers []Handler
	if r != nil {
		handlers = r.handlers
	}
	kind := msg.MessageKind()
	name := t.String()

	b.metrics.dispatched.Add(1)
	id := uuid.NewString()
	b.notify(BusEvent{Type: EventDispatchStart, DispatchID: id, Message: name, Kind: kind, Depth: depth, Handlers: len(handlers)})
	start := b.clock.Now()

	var (
		result any
		err    error
	)
	switch kind {
	case KindCommand:
		b.metrics.commands.Add(1)
		if len(handlers) == 0 {
			b.metrics.notFound.Add(1)
			err = &HandlerNotFoundError{Message: name}
			break
		}
		b.metrics.handlerCalls.Add(1)
		result, err = handlers[0](hctx, msg)
	case KindEvent:
		b.metrics.events.Add(1)
		var errs []error
		for i, h := range handlers {
			b.metrics.handlerCalls.Add(1)
			if _, herr := h(hctx, msg); herr != nil {
				b.notify(BusEvent{Type: EventHandlerError, DispatchID: id, Message: name, Kind: kind, Depth: depth, Handlers: i, Err: herr})
				errs = append(errs, herr)
			}
		}
		err = errors.Join(errs...)
	default:
		err = fmt.Errorf("xport: message %s has unknown kind %d", name, kind)
	}

	duration := b.clock.Since(start)
	b.recordProcessingTime(duration.Nanoseconds())
	if err != nil {
		b.metrics.errorCount.Add(1)
	}
	b.notify(BusEvent{Type: EventDispatchDone, DispatchID: id, Message: name, Kind: kind, Depth: depth, Handlers: len(handlers), Duration: duration, Err: err})
	return result, err
}

// Seal ends the wiring phase. The subscription table is read-only afterwards.
func (b *Bus) Seal() {
	if !b.sealed.Swap(true) {
		b.logger.Debug().Msg("xport: bus sealed")
	}
}

// Sealed reports whether Seal was called.
func (b *Bus) Sealed() bool { return b.sealed.Load() }

// Subscribers returns how many handlers are bound to the type of sample.
func (b *Bus) Subscribers(sample Message) int {
	if sample == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if r := b.routes[messageType(sample)]; r != nil {
		return len(r.handlers)
	}
	return 0
}

// GetMetrics returns current bus metrics.
func (b *Bus) GetMetrics() Metrics {
	m := Metrics{
		Dispatched:          b.metrics.dispatched.Load(),
		Commands:            b.metrics.commands.Load(),
		Events:              b.metrics.events.Load(),
		HandlerCalls:        b.metrics.handlerCalls.Load(),
		NotFound:            b.metrics.notFound.Load(),
		Errors:              b.metrics.errorCount.Load(),
		AvgProcessingTimeMs: float64(b.metrics.processingNs.Load()) / 1e6,
	}
	if b.observerPool != nil {
		m.EventsDropped = b.observerPool.Stats().Dropped
	}
	return m
}

// Health reports "degraded" when more than 5% of dispatches failed.
func (b *Bus) Health(_ context.Context) HealthStatus {
	metrics := b.GetMetrics()
	status := "healthy"
	if metrics.Errors > 0 && metrics.Dispatched > 0 {
		if float64(metrics.Errors)/float64(metrics.Dispatched) > 0.05 {
			status = "degraded"
		}
	}
	return HealthStatus{Status: status, Metrics: metrics, Timestamp: b.clock.Now()}
}

// Close drains the observer pool. The bus keeps dispatching synchronously afterwards.
func (b *Bus) Close(_ context.Context) error {
	var closeErr error
	b.closeOnce.Do(func() {
		if b.observerPool != nil {
			if err := b.observerPool.Close(5 * time.Second); err != nil {
				b.logger.Warn().Err(err).Msg("xport: observer pool shutdown timeout")
				closeErr = err
			}
		}
	})
	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()
	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			break
		}
	}
}

// notify hands e to the observer pool when one is configured, otherwise calls observers
// inline.
func (b *Bus) notify(e BusEvent) {
	b.observersMu.RLock()
	if len(b.observers) == 0 {
		b.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.observersMu.RUnlock()

	if b.observerPool != nil {
		b.observerPool.Notify(e, observers)
		return
	}
	for _, o := range observers {
		o.OnEvent(e)
	}
}

// recordProcessingTime keeps an exponential moving average.
func (b *Bus) recordProcessingTime(ns int64) {
	const alpha = 0.2
	current := b.metrics.processingNs.Load()
	if current == 0 {
		b.metrics.processingNs.Store(ns)
		return
	}
	b.metrics.processingNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}

// SubscribeCommand binds a typed handler to the command type C.
func SubscribeCommand[C Message](b *Bus, h func(ctx context.Context, cmd C) (any, error)) error {
	sample, ok := sampleOf[C]()
	if !ok {
		return ErrNilMessage
	}
	if sample.MessageKind() != KindCommand {
		return fmt.Errorf("xport: %s is not a command", MessageName(sample))
	}
	if h == nil {
		return ErrNilHandler
	}
	return b.Subscribe(sample, func(ctx context.Context, msg Message) (any, error) {
		cmd, ok := as[C](msg)
		if !ok {
			return nil, fmt.Errorf("xport: handler for %s received %s", MessageName(sample), MessageName(msg))
		}
		return h(ctx, cmd)
	})
}

// SubscribeEvent binds a typed handler to the event type E.
func SubscribeEvent[E Message](b *Bus, h func(ctx context.Context, evt E) error) error {
	sample, ok := sampleOf[E]()
	if !ok {
		return ErrNilMessage
	}
	if sample.MessageKind() != KindEvent {
		return fmt.Errorf("xport: %s is not an event", MessageName(sample))
	}
	if h == nil {
		return ErrNilHandler
	}
	return b.Subscribe(sample, func(ctx context.Context, msg Message) (any, error) {
		evt, ok := as[E](msg)
		if !ok {
			return nil, fmt.Errorf("xport: handler for %s received %s", MessageName(sample), MessageName(msg))
		}
		return nil, h(ctx, evt)
	})
}

// Execute dispatches a command and asserts the type of its result.
func Execute[R any](ctx context.Context, d Dispatcher, cmd Message) (R, error) {
	var zero R
	res, err := d.Handle(ctx, cmd)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	typed, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("xport: %s returned %T, want %T", MessageName(cmd), res, zero)
	}
	return typed, nil
}

// as accepts both M and *M, since both share one route. A pointer M also accepts the value.
func as[M Message](msg Message) (M, bool) {
	if m, ok := msg.(M); ok {
		return m, true
	}
	if p, ok := any(msg).(*M); ok && p != nil {
		return *p, true
	}
	if t := reflect.TypeFor[M](); t.Kind() == reflect.Pointer && reflect.TypeOf(msg) == t.Elem() {
		p := reflect.New(t.Elem())
		p.Elem().Set(reflect.ValueOf(msg))
		return p.Interface().(M), true
	}
	var zero M
	return zero, false
}
