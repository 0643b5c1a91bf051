// Package app assembles the library application from configured technologies: it
// resolves the adapters through the registry, wires the bus and runs the interfaces.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/library"
	"github.com/trickstertwo/xport/metrics"
)

// App owns the bus and every adapter resolved for one run.
type App struct {
	cfg        Config
	logger     *xlog.Logger
	registry   *xport.Registry
	registerer prometheus.Registerer

	startup    *xport.Startup
	bus        *xport.Bus
	db         library.Database
	senders    []xport.SenderAdapter
	interfaces []library.Interface
	started    bool
}

type Option func(*App)

// WithRegistry resolves adapters from reg instead of the default registry.
func WithRegistry(reg *xport.Registry) Option {
	return func(a *App) { a.registry = reg }
}

func WithLogger(l *xlog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithRegisterer sets where bus metrics are registered. Defaults to
// prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(a *App) { a.registerer = r }
}

func New(cfg Config, opts ...Option) *App {
	cfg.Normalize()
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = xlog.Default()
	}
	if a.registry == nil {
		a.registry = xport.DefaultRegistry()
	}
	if a.registerer == nil {
		a.registerer = prometheus.DefaultRegisterer
	}
	a.startup = xport.NewStartup(a.logger)
	return a
}

// Start resolves and sets up the database, then the senders, then the interfaces, wires
// the library onto a sealed bus and starts the interfaces. If any step fails every
// adapter acquired so far is released in reverse order and the error is returned.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return errors.New("app: already started")
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		if rerr := a.startup.Rollback(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		}
		if a.bus != nil {
			_ = a.bus.Close(ctx)
		}
		return err
	}
	a.started = true
	a.logger.Info().
		Str("database", a.cfg.Database).
		Str("interfaces", fmt.Sprint(a.cfg.Interfaces)).
		Str("senders", fmt.Sprint(a.cfg.Senders)).
		Msg("app started")
	return nil
}

func (a *App) start(ctx context.Context) error {
	director := xport.NewDirector(a.registry, a.logger)

	bus, err := a.buildBus()
	if err != nil {
		return err
	}
	a.bus = bus

	dbTag := xport.NewTag(a.cfg.Database, xport.ContextDatabase)
	db, err := resolve[library.Database](a.startup, director, dbTag)
	if err != nil {
		return err
	}
	a.startup.OnRollback(dbTag, db.Close)
	if err := db.SetUp(ctx); err != nil {
		return a.startup.Fail(dbTag, err)
	}
	if err := a.startup.Advance(dbTag, xport.StageSetUp); err != nil {
		return err
	}
	a.db = db

	senderTags := make([]xport.Tag, 0, len(a.cfg.Senders))
	for _, tech := range a.cfg.Senders {
		tag := xport.NewTag(tech, xport.ContextSender)
		s, err := resolve[xport.SenderAdapter](a.startup, director, tag)
		if err != nil {
			return err
		}
		a.startup.OnRollback(tag, s.Close)
		a.senders = append(a.senders, s)
		senderTags = append(senderTags, tag)
	}

	ifaceTags := make([]xport.Tag, 0, len(a.cfg.Interfaces))
	for _, tech := range a.cfg.Interfaces {
		tag := xport.NewTag(tech, xport.ContextInterface)
		i, err := resolve[library.Interface](a.startup, director, tag)
		if err != nil {
			return err
		}
		// Stop also releases what the factory acquired.
		a.startup.OnRollback(tag, i.Stop)
		a.interfaces = append(a.interfaces, i)
		ifaceTags = append(ifaceTags, tag)
	}

	if err := library.Wire(bus, db, a.senders); err != nil {
		return a.startup.Fail(dbTag, fmt.Errorf("wire library: %w", err))
	}
	bus.Seal()
	for _, tag := range append([]xport.Tag{dbTag}, senderTags...) {
		if err := a.startup.Advance(tag, xport.StageWired); err != nil {
			return err
		}
	}

	for n, i := range a.interfaces {
		tag := ifaceTags[n]
		i.SetView(db.View())
		i.SetMessageBus(bus)
		if err := a.startup.Advance(tag, xport.StageWired); err != nil {
			return err
		}
		if err := i.Start(ctx); err != nil {
			return a.startup.Fail(tag, err)
		}
		if err := a.startup.Advance(tag, xport.StageRunning); err != nil {
			return err
		}
	}
	for _, tag := range append([]xport.Tag{dbTag}, senderTags...) {
		if err := a.startup.Advance(tag, xport.StageRunning); err != nil {
			return err
		}
	}
	return nil
}

// resolve walks tag through Resolving and Resolved.
func resolve[T any](st *xport.Startup, d *xport.Director, tag xport.Tag) (T, error) {
	var zero T
	if err := st.Advance(tag, xport.StageResolving); err != nil {
		return zero, err
	}
	adapter, err := xport.Resolve[T](d, tag.Technology, tag.Context)
	if err != nil {
		return zero, st.Fail(tag, err)
	}
	if err := st.Advance(tag, xport.StageResolved); err != nil {
		return zero, err
	}
	return adapter, nil
}

func (a *App) buildBus() (*xport.Bus, error) {
	b := xport.NewBusBuilder().
		WithLogger(a.logger).
		WithObserverPool(2, 1024)
	if a.cfg.LoggerLevel == "DEBUG" {
		b.WithMiddleware(xport.LoggingMiddleware(a.logger))
	}
	if a.cfg.Metrics {
		obs, err := metrics.NewObserver(a.registerer)
		if err != nil {
			return nil, fmt.Errorf("app: metrics: %w", err)
		}
		b.WithObserver(obs)
	}
	return b.Build()
}

// Stop stops the interfaces, closes the senders and the database, newest first, then
// drains the bus observers.
func (a *App) Stop(ctx context.Context) error {
	if !a.started {
		return nil
	}
	a.started = false
	if a.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
		defer cancel()
	}
	err := a.startup.Shutdown(ctx)
	if cerr := a.bus.Close(ctx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	a.logger.Info().Msg("app stopped")
	return err
}

// Run starts the application and blocks until ctx is done.
func Run(ctx context.Context, cfg Config, opts ...Option) error {
	a := New(cfg, opts...)
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return a.Stop(context.WithoutCancel(ctx))
}

func (a *App) Bus() *xport.Bus { return a.bus }

func (a *App) Database() library.Database { return a.db }

func (a *App) Senders() []xport.SenderAdapter { return a.senders }

func (a *App) Interfaces() []library.Interface { return a.interfaces }

// Stages reports where every configured adapter got to.
func (a *App) Stages() map[xport.Tag]xport.Stage { return a.startup.Stages() }
