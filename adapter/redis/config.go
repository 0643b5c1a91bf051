package redis

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xport"
)

const Technology = "redis"

var (
	DatabaseTag  = xport.NewTag(Technology, xport.ContextDatabase)
	InterfaceTag = xport.NewTag(Technology, xport.ContextInterface)
	SenderTag    = xport.NewTag(Technology, xport.ContextSender)
)

func init() {
	if err := Register(xport.DefaultRegistry()); err != nil {
		panic(fmt.Errorf("xport/redis: failed to register adapters: %w", err))
	}
}

// Register adds the redis database, interface and sender to reg.
func Register(reg *xport.Registry) error {
	if err := reg.Register(xport.NewBuilder(DatabaseTag, buildConfig), func(cfg xport.Config) (any, error) {
		return NewDatabase(ConfigFromMap(cfg))
	}); err != nil {
		return err
	}
	if err := reg.Register(xport.NewBuilder(InterfaceTag, buildConfig), func(cfg xport.Config) (any, error) {
		return NewInterface(ConfigFromMap(cfg))
	}); err != nil {
		return err
	}
	return reg.Register(xport.NewBuilder(SenderTag, buildConfig), func(cfg xport.Config) (any, error) {
		return NewSender(ConfigFromMap(cfg))
	})
}

// Config covers all three redis adapters.
type Config struct {
	// Connection
	Addr          string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Username      string `env:"REDIS_USERNAME"`
	Password      string `env:"REDIS_PASSWORD"`
	DB            int    `env:"REDIS_DB" envDefault:"0"`
	TLS           bool   `env:"REDIS_TLS"`
	TLSServerName string `env:"REDIS_TLS_SERVER_NAME"`

	// Database
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"library"`

	// Interface
	Stream      string        `env:"REDIS_STREAM" envDefault:"library:commands"`
	Group       string        `env:"REDIS_GROUP" envDefault:"xport"`
	Consumer    string        `env:"REDIS_CONSUMER"`
	Concurrency int           `env:"REDIS_CONCURRENCY" envDefault:"4"`
	BatchSize   int           `env:"REDIS_BATCH_SIZE" envDefault:"64"`
	Block       time.Duration `env:"REDIS_BLOCK" envDefault:"2s"`
	StartID     string        `env:"REDIS_START_ID" envDefault:"$"`
	DeadLetter  string        `env:"REDIS_DEAD_LETTER"`

	// Sender
	NotifyStream string `env:"REDIS_NOTIFY_STREAM" envDefault:"library:notifications"`
	MaxLenApprox int64  `env:"REDIS_MAX_LEN_APPROX"`
}

// Defaults returns a Config with local development defaults.
func Defaults() Config {
	return Config{
		Addr:         "127.0.0.1:6379",
		KeyPrefix:    "library",
		Stream:       "library:commands",
		Group:        "xport",
		Consumer:     defaultConsumer(),
		Concurrency:  4,
		BatchSize:    64,
		Block:        2 * time.Second,
		StartID:      "$",
		NotifyStream: "library:notifications",
	}
}

func defaultConsumer() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "xport"
	}
	return fmt.Sprintf("xport-%s-%d", hostname, os.Getpid())
}

// LoadConfig reads the REDIS_* environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Consumer == "" {
		cfg.Consumer = defaultConsumer()
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

// Validate checks the fields every redis adapter needs.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.Block <= 0 {
		return fmt.Errorf("config: block must be > 0, got %v", c.Block)
	}
	return nil
}

func (c Config) toMap() xport.Config {
	return xport.Config{
		"addr":            c.Addr,
		"username":        c.Username,
		"password":        c.Password,
		"db":              c.DB,
		"tls":             c.TLS,
		"tls_server_name": c.TLSServerName,
		"key_prefix":      c.KeyPrefix,
		"stream":          c.Stream,
		"group":           c.Group,
		"consumer":        c.Consumer,
		"concurrency":     c.Concurrency,
		"batch_size":      c.BatchSize,
		"block":           c.Block,
		"start_id":        c.StartID,
		"dead_letter":     c.DeadLetter,
		"notify_stream":   c.NotifyStream,
		"max_len_approx":  c.MaxLenApprox,
	}
}

// ConfigFromMap fills a Config from m, keeping Defaults for anything missing.
func ConfigFromMap(m xport.Config) Config {
	d := Defaults()
	return Config{
		Addr:          m.String("addr", d.Addr),
		Username:      m.String("username", ""),
		Password:      m.String("password", ""),
		DB:            m.Int("db", 0),
		TLS:           m.Bool("tls", false),
		TLSServerName: m.String("tls_server_name", ""),
		KeyPrefix:     m.String("key_prefix", d.KeyPrefix),
		Stream:        m.String("stream", d.Stream),
		Group:         m.String("group", d.Group),
		Consumer:      m.String("consumer", d.Consumer),
		Concurrency:   m.Int("concurrency", d.Concurrency),
		BatchSize:     m.Int("batch_size", d.BatchSize),
		Block:         m.Duration("block", d.Block),
		StartID:       m.String("start_id", d.StartID),
		DeadLetter:    m.String("dead_letter", ""),
		NotifyStream:  m.String("notify_stream", d.NotifyStream),
		MaxLenApprox:  int64(m.Int("max_len_approx", 0)),
	}
}
