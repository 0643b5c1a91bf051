package xport

import (
	"errors"
	"fmt"

	"github.com/trickstertwo/xlog"
)

// Director turns a technology name into a live, configured adapter. It never names a
// concrete adapter type: builders and adapters are matched purely by Tag.
type Director struct {
	registry *Registry
	logger   *xlog.Logger
	builder  Builder
}

// NewDirector resolves against reg, or the default registry when reg is nil.
func NewDirector(reg *Registry, logger *xlog.Logger) *Director {
	if reg == nil {
		reg = defaultRegistry
	}
	if logger == nil {
		logger = xlog.Default()
	}
	return &Director{registry: reg, logger: logger}
}

// SetBuilder selects the builder used by the next Adapter call.
func (d *Director) SetBuilder(b Builder) { d.builder = b }

// BuilderFor looks up the builder registered for (technology, ctx).
func (d *Director) BuilderFor(technology string, ctx Context) (Builder, error) {
	return d.registry.Builder(NewTag(technology, ctx))
}

// Adapter runs the active builder and constructs the adapter carrying the same tag.
func (d *Director) Adapter() (any, error) {
	if d.builder == nil {
		return nil, errors.New("xport: director has no builder set")
	}
	tag := d.builder.Tag()

	factory, err := d.registry.Adapter(tag)
	if err != nil {
		return nil, err
	}

	cfg, err := d.builder.Build()
	if err != nil {
		return nil, &AdapterResolutionError{
			Technology: tag.Technology,
			Context:    tag.Context,
			Component:  "builder",
			Matches:    1,
			Err:        fmt.Errorf("build config: %w", err),
		}
	}

	adapter, err := factory(cfg)
	if err != nil {
		return nil, &AdapterResolutionError{
			Technology: tag.Technology,
			Context:    tag.Context,
			Component:  "adapter",
			Matches:    1,
			Err:        fmt.Errorf("construct adapter: %w", err),
		}
	}
	d.logger.Debug().Str("technology", tag.Technology).Str("context", string(tag.Context)).Msg("xport: adapter resolved")
	return adapter, nil
}

// Resolve finds the builder for (technology, ctx), builds the adapter and checks that it
// satisfies T.
func Resolve[T any](d *Director, technology string, ctx Context) (T, error) {
	var zero T
	b, err := d.BuilderFor(technology, ctx)
	if err != nil {
		return zero, err
	}
	d.SetBuilder(b)
	a, err := d.Adapter()
	if err != nil {
		return zero, err
	}
	typed, ok := a.(T)
	if !ok {
		tag := b.Tag()
		return zero, &AdapterResolutionError{
			Technology: tag.Technology,
			Context:    tag.Context,
			Component:  "adapter",
			Matches:    1,
			Err:        fmt.Errorf("adapter %T does not implement %T", a, (*T)(nil)),
		}
	}
	return typed, nil
}
