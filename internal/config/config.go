// Package config loads respatch configuration from defaults, an optional
// YAML file and RESPATCH_ environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/jengzang/respatch/internal/logging"
	"github.com/jengzang/respatch/internal/pipeline"
	"github.com/jengzang/respatch/internal/validation"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "RESPATCH_"

// ConfigPathEnvVar overrides the config file path
const ConfigPathEnvVar = "RESPATCH_CONFIG"

// DefaultConfigPaths are searched in order when no path is given
var DefaultConfigPaths = []string{
	"respatch.yaml",
	"respatch.yml",
	"/etc/respatch/respatch.yaml",
}

// Config is the application configuration
type Config struct {
	Server   ServerConfig    `koanf:"server"`
	Database DatabaseConfig  `koanf:"database"`
	Logging  LoggingConfig   `koanf:"logging"`
	Pipeline pipeline.Params `koanf:"pipeline"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
	Mode string `koanf:"mode" validate:"oneof=debug release test"`

	// JWTSecret enables bearer-token auth on /api when set
	JWTSecret string `koanf:"jwt_secret"`

	// RateLimit is requests per second per client, 0 disables limiting
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
	RateBurst int     `koanf:"rate_burst" validate:"gte=0"`
}

// DatabaseConfig configures SQLite storage
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// LoggingConfig configures the global logger
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			Mode:      "release",
			RateLimit: 20,
			RateBurst: 40,
		},
		Database: DatabaseConfig{
			Path: "./data/respatch.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Pipeline: pipeline.DefaultParams(),
	}
}

// Load builds the configuration. An empty path falls back to
// RESPATCH_CONFIG and then DefaultConfigPaths; a missing file is not an
// error unless the path was given explicitly.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every section against its rules
func (c *Config) Validate() error {
	return validation.Struct(c)
}

// LoggerConfig converts the logging section for logging.Init
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envAliases maps short variable names to config paths
var envAliases = map[string]string{
	"port":       "server.addr",
	"addr":       "server.addr",
	"jwt_secret": "server.jwt_secret",
	"db_path":    "database.path",
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"workers":    "pipeline.workers",
}

// envTransformFunc maps RESPATCH_SERVER__JWT_SECRET to server.jwt_secret.
// A double underscore separates levels; short aliases are listed in
// envAliases.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	if path, ok := envAliases[key]; ok {
		return path
	}
	return strings.ReplaceAll(key, "__", ".")
}
