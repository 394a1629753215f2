// Package config loads and validates the deskwire client configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath   = "deskwire.toml"
	DefaultBrokerHost   = "127.0.0.1"
	DefaultBrokerPort   = 6001
	DefaultBrokerScheme = "ws"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Config is the top-level client configuration.
type Config struct {
	Log    LogConfig    `toml:"log"`
	Broker BrokerConfig `toml:"broker"`
	API    APIConfig    `toml:"api"`
	Auth   AuthConfig   `toml:"auth"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

// BrokerConfig holds the realtime broker endpoint parameters.
type BrokerConfig struct {
	Key    string `toml:"key" validate:"required"`
	Host   string `toml:"host" validate:"required"`
	Port   int    `toml:"port" validate:"gt=0,lte=65535"`
	Scheme string `toml:"scheme" validate:"oneof=ws wss"`
}

// APIConfig holds the backend API origin used for channel authorization
// and attachment retrieval.
type APIConfig struct {
	Origin string `toml:"origin" validate:"required,url"`
}

// AuthConfig holds the bearer credential source. Token takes precedence
// over TokenFile when both are set.
type AuthConfig struct {
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = DefaultLogLevel
	}
	if strings.TrimSpace(c.Log.Format) == "" {
		c.Log.Format = DefaultLogFormat
	}
	if strings.TrimSpace(c.Broker.Host) == "" {
		c.Broker.Host = DefaultBrokerHost
	}
	if c.Broker.Port == 0 {
		c.Broker.Port = DefaultBrokerPort
	}
	if strings.TrimSpace(c.Broker.Scheme) == "" {
		c.Broker.Scheme = DefaultBrokerScheme
	}
}

// Validate checks the configuration against struct-level constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads a TOML config file, applies defaults, and validates it.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
