// Package config loads server settings from defaults, an optional YAML file
// and GRAPHREPO_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GRAPHREPO_"

// Backends.
const (
	BackendNeo4j  = "neo4j"
	BackendSQLite = "sqlite"
)

// Config holds all settings.
type Config struct {
	Backend string        `yaml:"backend" env:"BACKEND" validate:"required,oneof=neo4j sqlite"`
	Neo4j   Neo4jConfig   `yaml:"neo4j" envPrefix:"NEO4J_"`
	SQLite  SQLiteConfig  `yaml:"sqlite" envPrefix:"SQLITE_"`
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Breaker BreakerConfig `yaml:"breaker" envPrefix:"BREAKER_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
}

// Neo4jConfig holds Neo4j connection configuration
type Neo4jConfig struct {
	URI      string `yaml:"uri" env:"URI" validate:"required_if=Enabled true"`
	Username string `yaml:"username" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Database string `yaml:"database" env:"DATABASE"`

	// Enabled is derived from Backend before validation.
	Enabled bool `yaml:"-"`
}

// SQLiteConfig locates the embedded store. ":memory:" keeps it in process.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH" validate:"required"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// BreakerConfig tunes the circuit breaker in front of the store.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED"`
	MaxRequests      uint32        `yaml:"max_requests" env:"MAX_REQUESTS"`
	Interval         time.Duration `yaml:"interval" env:"INTERVAL"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	FailureThreshold float64       `yaml:"failure_threshold" env:"FAILURE_THRESHOLD" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests" env:"MIN_REQUESTS"`
}

// LogConfig selects the zap configuration.
type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Backend: BackendSQLite,
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Password: "password",
			Database: "neo4j",
		},
		SQLite: SQLiteConfig{Path: "graphrepo.db"},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (skipped when empty), applies the environment and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint.
func (c *Config) Validate() error {
	c.Neo4j.Enabled = c.Backend == BackendNeo4j
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
