// Package log provides a sender that writes notifications to the structured logger.
package log

import (
	"context"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xport"
)

const Technology = "log"

var SenderTag = xport.NewTag(Technology, xport.ContextSender)

func init() {
	if err := Register(xport.DefaultRegistry()); err != nil {
		panic(fmt.Errorf("xport/log: failed to register adapters: %w", err))
	}
}

// Register adds the log sender to reg.
func Register(reg *xport.Registry) error {
	return reg.Register(xport.NewBuilder(SenderTag, buildConfig), func(cfg xport.Config) (any, error) {
		return NewSender(ConfigFromMap(cfg))
	})
}

type Config struct {
	// Level is one of debug, info, warn.
	Level string `env:"LOG_SENDER_LEVEL" envDefault:"info"`
}

func buildConfig() (xport.Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return xport.Config{"level": cfg.Level}, nil
}

func ConfigFromMap(m xport.Config) Config {
	return Config{Level: m.String("level", "info")}
}

// Sender logs every payload. It never fails while open.
type Sender struct {
	level  string
	logger *xlog.Logger
	closed bool
}

func NewSender(cfg Config) (*Sender, error) {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	switch level {
	case "":
		level = "info"
	case "debug", "info", "warn":
	default:
		return nil, fmt.Errorf("log sender: unknown level %q", cfg.Level)
	}
	return &Sender{level: level, logger: xlog.Default()}, nil
}

func (s *Sender) WithLogger(l *xlog.Logger) *Sender {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Sender) Send(_ context.Context, payload string) error {
	if s.closed {
		return fmt.Errorf("log sender: closed")
	}
	ev := s.logger.Info()
	switch s.level {
	case "debug":
		ev = s.logger.Debug()
	case "warn":
		ev = s.logger.Warn()
	}
	ev.Str("payload", payload).Msg("notification")
	return nil
}

func (s *Sender) Close(context.Context) error {
	s.closed = true
	return nil
}
