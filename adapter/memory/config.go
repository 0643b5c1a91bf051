package memory

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xport"
)

const Technology = "memory"

var (
	DatabaseTag = xport.NewTag(Technology, xport.ContextDatabase)
	SenderTag   = xport.NewTag(Technology, xport.ContextSender)
)

func init() {
	if err := Register(xport.DefaultRegistry()); err != nil {
		panic(fmt.Errorf("xport/memory: failed to register adapters: %w", err))
	}
}

// Register adds the memory database and sender to reg.
func Register(reg *xport.Registry) error {
	if err := reg.Register(xport.NewBuilder(DatabaseTag, buildConfig), func(cfg xport.Config) (any, error) {
		return NewDatabase(ConfigFromMap(cfg)), nil
	}); err != nil {
		return err
	}
	return reg.Register(xport.NewBuilder(SenderTag, buildConfig), func(cfg xport.Config) (any, error) {
		return NewSender(ConfigFromMap(cfg)), nil
	})
}

// Config controls the in-memory adapters.
type Config struct {
	// Capacity pre-sizes the book store (default: 64).
	Capacity int `env:"MEMORY_CAPACITY" envDefault:"64"`
	// History is how many payloads the sender keeps (default: 1024, 0 = unbounded).
	History int `env:"MEMORY_HISTORY" envDefault:"1024"`
}

// LoadConfig reads the MEMORY_* environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func buildConfig() (xport.Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.toMap(), nil
}

func (c Config) toMap() xport.Config {
	return xport.Config{
		"capacity": c.Capacity,
		"history":  c.History,
	}
}

func ConfigFromMap(cfg xport.Config) Config {
	return Config{
		Capacity: maxInt(1, cfg.Int("capacity", 64)),
		History:  maxInt(0, cfg.Int("history", 1024)),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
