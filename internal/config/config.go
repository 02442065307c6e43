// Package config loads server and client settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is populated from IRC_-prefixed environment variables. Command-line
// flags override individual fields.
type Config struct {
	// Host is the server host the client dials.
	Host string `default:"localhost"`
	// Port is the chat protocol TCP port on both sides.
	Port int `default:"6667"`
	// MaxUsers caps concurrent registrations; 0 means unlimited.
	MaxUsers int `split_words:"true" default:"0"`
	// APIAddr is the admin HTTP API listen address; empty disables it.
	APIAddr string `envconfig:"API_ADDR" default:""`
	// MetricsInterval is the period of the stats log line.
	MetricsInterval time.Duration `split_words:"true" default:"30s"`
	// Debug enables debug logging.
	Debug bool `default:"false"`
}

// Load reads a .env file when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("irc", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
