// Package config handles loading jsonlcodec's runtime configuration and
// filling in defaults for unset values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the jsonlcodec demo server.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Codec  CodecConfig  `koanf:"codec"`
	Redis  RedisConfig  `koanf:"redis"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// CodecConfig holds the producer-side limits applied to every stream.
type CodecConfig struct {
	// MaxDepth caps how deeply nested a deferred leaf may be before it is
	// rejected/errored instead of awaited/iterated. Zero means unlimited.
	MaxDepth int `koanf:"max_depth"`
}

// RedisConfig points at the Redis instance backing the pub/sub example
// AsyncSequence source.
type RedisConfig struct {
	Addr string `koanf:"addr"`
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	// This is the equivalent of require('dotenv').config() in Node.
	_ = godotenv.Load()

	// Create a new koanf instance. The "." delimiter tells koanf how to
	// separate nested keys internally (e.g., "server.port").
	k := koanf.New(".")

	// Load the YAML config file. file.Provider reads the file,
	// yaml.Parser() decodes the YAML format into koanf's internal map.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "JSONLCODEC_" can override a config value. The callback transforms
	// the env var name into a koanf key path:
	//   JSONLCODEC_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("JSONLCODEC_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "JSONLCODEC_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// Unmarshal the loaded key-value pairs into our Config struct.
	// The "" means start from the root. &cfg passes a pointer so koanf
	// can write into the struct (like passing by reference in Node).
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	return &cfg, nil
}
