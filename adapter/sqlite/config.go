package sqlite

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xport"
)

const Technology = "sqlite"

var DatabaseTag = xport.NewTag(Technology, xport.ContextDatabase)

func init() {
	if err := Register(xport.DefaultRegistry()); err != nil {
		panic(fmt.Errorf("xport/sqlite: failed to register adapters: %w", err))
	}
}

// Register adds the sqlite database to reg.
func Register(reg *xport.Registry) error {
	b := xport.NewBuilder(DatabaseTag, func() (xport.Config, error) {
		cfg, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		return cfg.toMap(), nil
	})
	return reg.Register(b, func(cfg xport.Config) (any, error) {
		return NewDatabase(ConfigFromMap(cfg))
	})
}

// Config controls the sqlite database.
type Config struct {
	// Location is the database file path.
	Location string `env:"SQLITE_LOCATION" envDefault:"library.db"`
	// BusyTimeout is how long a writer waits on a locked database (default: 5s).
	BusyTimeout time.Duration `env:"SQLITE_BUSY_TIMEOUT" envDefault:"5s"`
}

// LoadConfig reads the SQLITE_* environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) toMap() xport.Config {
	return xport.Config{
		"location":     c.Location,
		"busy_timeout": c.BusyTimeout,
	}
}

func ConfigFromMap(cfg xport.Config) Config {
	return Config{
		Location:    cfg.String("location", "library.db"),
		BusyTimeout: cfg.Duration("busy_timeout", 5*time.Second),
	}
}
