package xport

import (
	"reflect"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// DefaultMaxDepth bounds nested dispatch (a handler dispatching from inside a handler).
const DefaultMaxDepth = 32

// BusBuilder constructs Bus instances.
type BusBuilder struct {
	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock
	maxDepth    int

	poolWorkers int
	poolBuffer  int
}

// NewBusBuilder returns a new builder with sensible defaults.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{maxDepth: DefaultMaxDepth}
}

func (bb *BusBuilder) WithMiddleware(mw ...Middleware) *BusBuilder {
	if len(mw) == 0 {
		return bb
	}
	bb.middlewares = append(bb.middlewares, mw...)
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithMaxDepth overrides DefaultMaxDepth.
func (bb *BusBuilder) WithMaxDepth(n int) *BusBuilder {
	if n > 0 {
		bb.maxDepth = n
	}
	return bb
}

// WithObserverPool delivers observer events asynchronously through a bounded pool.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	bb.poolWorkers = workers
	bb.poolBuffer = bufferSize
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	b := &Bus{
		routes:      map[reflect.Type]*route{},
		clock:       clk,
		logger:      lg,
		middlewares: bb.middlewares,
		maxDepth:    bb.maxDepth,
		metrics:     &busMetrics{},
	}
	if bb.poolWorkers > 0 || bb.poolBuffer > 0 {
		b.observerPool = NewObserverPool(bb.poolWorkers, bb.poolBuffer)
	}

	// Attach logging observer first unless already supplied externally.
	hasLoggingObserver := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		b.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	return b, nil
}

// New constructs a Bus via the builder.
func New(init func(b *BusBuilder)) (*Bus, error) {
	b := NewBusBuilder()
	if init != nil {
		init(b)
	}
	return b.Build()
}
