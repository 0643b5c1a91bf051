package xport

import (
	"errors"
	"sort"
	"sync"
)

// Builder produces the configuration of one adapter. It carries the same Tag as the
// adapter it configures.
type Builder interface {
	Tag() Tag
	Build() (Config, error)
}

// AdapterFactory constructs an adapter from the configuration produced by its Builder.
type AdapterFactory func(cfg Config) (any, error)

type builderFunc struct {
	tag   Tag
	build func() (Config, error)
}

func (b builderFunc) Tag() Tag               { return b.tag }
func (b builderFunc) Build() (Config, error) { return b.build() }

// NewBuilder adapts a plain function into a Builder for tag.
func NewBuilder(tag Tag, build func() (Config, error)) Builder {
	return builderFunc{tag: tag, build: build}
}

// Registry maps capability tags to builders and adapter factories. Registrations are
// kept, not replaced, so a tag registered twice is reported as ambiguous on resolution.
type Registry struct {
	mu       sync.RWMutex
	builders map[Tag][]Builder
	adapters map[Tag][]AdapterFactory
}

func NewRegistry() *Registry {
	return &Registry{
		builders: map[Tag][]Builder{},
		adapters: map[Tag][]AdapterFactory{},
	}
}

// RegisterBuilder adds a builder under its own tag.
func (r *Registry) RegisterBuilder(b Builder) error {
	if b == nil {
		return errors.New("xport: builder must not be nil")
	}
	tag := b.Tag()
	if err := tag.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.builders[tag] = append(r.builders[tag], b)
	r.mu.Unlock()
	return nil
}

// RegisterAdapter adds an adapter factory under tag.
func (r *Registry) RegisterAdapter(tag Tag, factory AdapterFactory) error {
	if factory == nil {
		return errors.New("xport: adapter factory must not be nil")
	}
	if err := tag.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.adapters[tag] = append(r.adapters[tag], factory)
	r.mu.Unlock()
	return nil
}

// Register is the usual per-technology call: one builder and its matching adapter.
func (r *Registry) Register(b Builder, factory AdapterFactory) error {
	if err := r.RegisterBuilder(b); err != nil {
		return err
	}
	return r.RegisterAdapter(b.Tag(), factory)
}

// Builder returns the single builder registered for tag.
func (r *Registry) Builder(tag Tag) (Builder, error) {
	r.mu.RLock()
	matches := r.builders[tag]
	r.mu.RUnlock()
	if len(matches) != 1 {
		return nil, &AdapterResolutionError{Technology: tag.Technology, Context: tag.Context, Component: "builder", Matches: len(matches)}
	}
	return matches[0], nil
}

// Adapter returns the single adapter factory registered for tag.
func (r *Registry) Adapter(tag Tag) (AdapterFactory, error) {
	r.mu.RLock()
	matches := r.adapters[tag]
	r.mu.RUnlock()
	if len(matches) != 1 {
		return nil, &AdapterResolutionError{Technology: tag.Technology, Context: tag.Context, Component: "adapter", Matches: len(matches)}
	}
	return matches[0], nil
}

// Technologies lists the technology names that have an adapter for ctx, sorted.
func (r *Registry) Technologies(ctx Context) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for tag := range r.adapters {
		if tag.Context == ctx {
			out = append(out, tag.Technology)
		}
	}
	sort.Strings(out)
	return out
}

var defaultRegistry = NewRegistry()

// DefaultRegistry is the process-wide registry adapter packages register into from init.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds a builder/adapter pair to the default registry.
func Register(b Builder, factory AdapterFactory) error {
	return defaultRegistry.Register(b, factory)
}
