// Package dynamodb stores library books in an Amazon DynamoDB table keyed by ISBN.
package dynamodb

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xport"
)

const Technology = "dynamodb"

var DatabaseTag = xport.NewTag(Technology, xport.ContextDatabase)

func init() {
	if err := Register(xport.DefaultRegistry()); err != nil {
		panic(fmt.Errorf("xport/dynamodb: failed to register adapters: %w", err))
	}
}

// Register adds the dynamodb database to reg.
func Register(reg *xport.Registry) error {
	b := xport.NewBuilder(DatabaseTag, func() (xport.Config, error) {
		cfg, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		return cfg.toMap(), nil
	})
	return reg.Register(b, func(cfg xport.Config) (any, error) {
		return Open(ConfigFromMap(cfg))
	})
}

// Config controls the dynamodb database. Credentials come from the usual AWS chain.
type Config struct {
	Table  string `env:"DYNAMODB_TABLE" envDefault:"library_books"`
	Region string `env:"DYNAMODB_REGION" envDefault:"us-east-1"`
	// Endpoint overrides the service URL, e.g. DynamoDB Local.
	Endpoint string `env:"DYNAMODB_ENDPOINT"`
	// CreateTable lets SetUp create a missing table (pay per request).
	CreateTable bool `env:"DYNAMODB_CREATE_TABLE" envDefault:"true"`
}

// LoadConfig reads the DYNAMODB_* environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) toMap() xport.Config {
	return xport.Config{
		"table":        c.Table,
		"region":       c.Region,
		"endpoint":     c.Endpoint,
		"create_table": c.CreateTable,
	}
}

func ConfigFromMap(m xport.Config) Config {
	return Config{
		Table:       m.String("table", "library_books"),
		Region:      m.String("region", "us-east-1"),
		Endpoint:    m.String("endpoint", ""),
		CreateTable: m.Bool("create_table", true),
	}
}
