// Package config provides Viper-based configuration for the relay server.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// LimitsConfig holds per-connection abuse limits.
type LimitsConfig struct {
	// MessagesPerSecond is the sustained inbound message rate per client.
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	// MessageBurst is the token-bucket burst size per client.
	MessageBurst int `mapstructure:"message_burst"`
	// MaxMessageSize is the maximum inbound frame size in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Limits  LimitsConfig  `mapstructure:"limits"`
}

// Load reads configuration from the optional file at path, applying defaults
// and HUDDLE_-prefixed environment variable overrides. An empty path loads
// defaults plus environment only.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks all configuration invariants and reports every violation.
func (c Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Limits.MessagesPerSecond <= 0 {
		errs = append(errs, fmt.Sprintf("limits.messages_per_second must be > 0, got %g", c.Limits.MessagesPerSecond))
	}
	if c.Limits.MessageBurst < 1 {
		errs = append(errs, fmt.Sprintf("limits.message_burst must be >= 1, got %d", c.Limits.MessageBurst))
	}
	if c.Limits.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("limits.max_message_size must be >= 1, got %d", c.Limits.MaxMessageSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	if l.Format != "json" && l.Format != "console" {
		return errors.New("logging.format must be \"json\" or \"console\"")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("limits.messages_per_second", 100)
	v.SetDefault("limits.message_burst", 200)
	v.SetDefault("limits.max_message_size", 1024*1024)
}
