package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"
	"gopkg.in/yaml.v3"
)

const configFileEnv = "APP_CONFIG_FILE"

// Config selects the adapters to run. Technology names are matched case-insensitively
// against the registry.
type Config struct {
	Database    string   `yaml:"database" env:"APP_DATABASE"`
	Interfaces  []string `yaml:"interfaces" env:"APP_INTERFACES" envSeparator:","`
	Senders     []string `yaml:"senders" env:"APP_SENDERS" envSeparator:","`
	LoggerLevel string   `yaml:"logger_level" env:"APP_LOGGER_LEVEL"`
	// Metrics attaches the Prometheus observer to the bus.
	Metrics bool `yaml:"metrics" env:"APP_METRICS"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"APP_SHUTDOWN_TIMEOUT"`
}

func Defaults() Config {
	return Config{
		Database:        "memory",
		Interfaces:      []string{"http"},
		LoggerLevel:     "INFO",
		Metrics:         true,
		ShutdownTimeout: 15 * time.Second,
	}
}

// LoadConfig starts from Defaults, applies the YAML file named by APP_CONFIG_FILE if
// set, then the APP_* environment.
func LoadConfig() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv(configFileEnv)); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Normalize trims and lower-cases technology names, drops blanks and repeats, and
// replaces an unknown logger level with INFO.
func (c *Config) Normalize() {
	c.Database = strings.ToLower(strings.TrimSpace(c.Database))
	c.Interfaces = normalizeList(c.Interfaces)
	c.Senders = normalizeList(c.Senders)
	c.LoggerLevel = strings.ToUpper(strings.TrimSpace(c.LoggerLevel))
	if _, ok := levels[c.LoggerLevel]; !ok {
		c.LoggerLevel = "INFO"
	}
}

func (c Config) Validate() error {
	if c.Database == "" {
		return errors.New("app: database technology must be set")
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var levels = map[string]bool{"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true}

// NewLogger installs the zerolog backend at the configured level and returns the
// application logger.
func NewLogger(level string) *xlog.Logger {
	minLevel := xlog.LevelInfo
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		minLevel = xlog.LevelDebug
	case "WARNING":
		minLevel = xlog.LevelWarn
	case "ERROR", "CRITICAL":
		minLevel = xlog.LevelError
	}
	return zerolog.Use(zerolog.Config{
		MinLevel:          minLevel,
		ConsoleTimeFormat: time.RFC3339Nano,
	}).With(xlog.Str("app", "xport-library"))
}
