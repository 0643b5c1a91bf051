// Package mqtt provides an MQTT interface that turns messages on "<prefix>/<command>"
// topics into library commands, and a sender that publishes notifications.
package mqtt

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xport"
)

const Technology = "mqtt"

var (
	InterfaceTag = xport.NewTag(Technology, xport.ContextInterface)
	SenderTag    = xport.NewTag(Technology, xport.ContextSender)
)

func init() {
	if err := Register(xport.DefaultRegistry()); err != nil {
		panic(fmt.Errorf("xport/mqtt: failed to register adapters: %w", err))
	}
}

// Register adds the mqtt interface and sender to reg.
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

// Config controls both mqtt adapters.
type Config struct {
	Broker   string `env:"MQTT_BROKER" envDefault:"tcp://127.0.0.1:1883"`
	ClientID string `env:"MQTT_CLIENT_ID"`
	Username string `env:"MQTT_USERNAME"`
	Password string `env:"MQTT_PASSWORD"`
	// Topic is the interface subscription filter.
	Topic string `env:"MQTT_TOPIC" envDefault:"app/book/#"`
	// NotifyTopic receives sender notifications.
	NotifyTopic    string        `env:"MQTT_NOTIFY_TOPIC" envDefault:"app/notifications"`
	QoS            int           `env:"MQTT_QOS" envDefault:"1"`
	ConnectTimeout time.Duration `env:"MQTT_CONNECT_TIMEOUT" envDefault:"5s"`
}

// LoadConfig reads the MQTT_* environment.
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
		"broker":          c.Broker,
		"client_id":       c.ClientID,
		"username":        c.Username,
		"password":        c.Password,
		"topic":           c.Topic,
		"notify_topic":    c.NotifyTopic,
		"qos":             c.QoS,
		"connect_timeout": c.ConnectTimeout,
	}
}

func ConfigFromMap(m xport.Config) Config {
	return Config{
		Broker:         m.String("broker", "tcp://127.0.0.1:1883"),
		ClientID:       m.String("client_id", ""),
		Username:       m.String("username", ""),
		Password:       m.String("password", ""),
		Topic:          m.String("topic", "app/book/#"),
		NotifyTopic:    m.String("notify_topic", "app/notifications"),
		QoS:            m.Int("qos", 1),
		ConnectTimeout: m.Duration("connect_timeout", 5*time.Second),
	}
}

func (c Config) validate() error {
	if c.Broker == "" {
		return fmt.Errorf("config: broker required")
	}
	if c.QoS < 0 || c.QoS > 2 {
		return fmt.Errorf("config: qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("config: connect_timeout must be > 0")
	}
	return nil
}

func (c Config) clientID(role string) string {
	if c.ClientID != "" {
		return c.ClientID + "-" + role
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "xport"
	}
	return fmt.Sprintf("xport-%s-%s-%d", role, hostname, os.Getpid())
}
