// Package kafka provides a Kafka interface (consumer group reading command topics) and
// sender (writer to a notification topic) built on segmentio/kafka-go.
package kafka

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xport"
)

const Technology = "kafka"

var (
	InterfaceTag = xport.NewTag(Technology, xport.ContextInterface)
	SenderTag    = xport.NewTag(Technology, xport.ContextSender)
)

func init() {
	if err := Register(xport.DefaultRegistry()); err != nil {
		panic(fmt.Errorf("xport/kafka: failed to register adapters: %w", err))
	}
}

// Register adds the kafka interface and sender to reg.
func Register(reg *xport.Registry) error {
	if err := reg.Register(xport.NewBuilder(InterfaceTag, buildConfig), func(cfg xport.Config) (any, error) {
		return NewInterface(ConfigFromMap(cfg))
	}); err != nil {
		return err
	}
	return reg.Register(xport.NewBuilder(SenderTag, buildConfig), func(cfg xport.Config) (any, error) {
		return NewSender(ConfigFromMap(cfg))
	})
}

// Config controls both kafka adapters.
type Config struct {
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"127.0.0.1:9092" envSeparator:","`
	// GroupID is the consumer group of the interface.
	GroupID string `env:"KAFKA_GROUP_ID" envDefault:"xport"`
	// Topics are read by the interface. The command is the last dot or slash separated
	// segment of the topic unless the record has a "command" header.
	Topics  []string      `env:"KAFKA_TOPICS" envDefault:"library.register" envSeparator:","`
	MaxWait time.Duration `env:"KAFKA_MAX_WAIT" envDefault:"500ms"`
	// NotifyTopic receives sender notifications.
	NotifyTopic  string        `env:"KAFKA_NOTIFY_TOPIC" envDefault:"library.notifications"`
	WriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" envDefault:"10s"`
}

// LoadConfig reads the KAFKA_* environment.
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
		"brokers":       c.Brokers,
		"group_id":      c.GroupID,
		"topics":        c.Topics,
		"max_wait":      c.MaxWait,
		"notify_topic":  c.NotifyTopic,
		"write_timeout": c.WriteTimeout,
	}
}

func ConfigFromMap(m xport.Config) Config {
	return Config{
		Brokers:      m.Strings("brokers", []string{"127.0.0.1:9092"}),
		GroupID:      m.String("group_id", "xport"),
		Topics:       m.Strings("topics", []string{"library.register"}),
		MaxWait:      m.Duration("max_wait", 500*time.Millisecond),
		NotifyTopic:  m.String("notify_topic", "library.notifications"),
		WriteTimeout: m.Duration("write_timeout", 10*time.Second),
	}
}
