// Package http serves the library over a REST API built on chi.
package http

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xport"
)

const Technology = "http"

var InterfaceTag = xport.NewTag(Technology, xport.ContextInterface)

func init() {
	if err := Register(xport.DefaultRegistry()); err != nil {
		panic(fmt.Errorf("xport/http: failed to register adapters: %w", err))
	}
}

// Register adds the http interface to reg.
func Register(reg *xport.Registry) error {
	return reg.Register(xport.NewBuilder(InterfaceTag, buildConfig), func(cfg xport.Config) (any, error) {
		return NewInterface(ConfigFromMap(cfg))
	})
}

type Config struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// RequestTimeout is the deadline handed to bus dispatches. Zero means none.
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"5s"`
	// RateLimitRPS of zero disables rate limiting.
	RateLimitRPS   float64 `env:"HTTP_RATE_LIMIT_RPS" envDefault:"30"`
	RateLimitBurst int     `env:"HTTP_RATE_LIMIT_BURST" envDefault:"60"`
	// Metrics mounts GET /metrics.
	Metrics bool `env:"HTTP_METRICS" envDefault:"false"`
}

// LoadConfig reads the HTTP_* environment.
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
		"addr":             c.Addr,
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"idle_timeout":     c.IdleTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
		"request_timeout":  c.RequestTimeout,
		"rate_limit_rps":   c.RateLimitRPS,
		"rate_limit_burst": c.RateLimitBurst,
		"metrics":          c.Metrics,
	}
}

func ConfigFromMap(m xport.Config) Config {
	return Config{
		Addr:            m.String("addr", ":8080"),
		ReadTimeout:     m.Duration("read_timeout", 10*time.Second),
		WriteTimeout:    m.Duration("write_timeout", 10*time.Second),
		IdleTimeout:     m.Duration("idle_timeout", 60*time.Second),
		ShutdownTimeout: m.Duration("shutdown_timeout", 10*time.Second),
		RequestTimeout:  m.Duration("request_timeout", 5*time.Second),
		RateLimitRPS:    m.Float("rate_limit_rps", 30),
		RateLimitBurst:  m.Int("rate_limit_burst", 60),
		Metrics:         m.Bool("metrics", false),
	}
}
