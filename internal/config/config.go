// Package config loads bridge settings from defaults, an optional YAML file,
// an optional .env file and CHATBRIDGE_* environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/vovakirdan/chatbridge/internal/logging"
	"github.com/vovakirdan/chatbridge/transport"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CHATBRIDGE_"

// Config is the complete bridge configuration.
type Config struct {
	// ServerAddress is the remote endpoint. Schema is mandatory.
	ServerAddress string `yaml:"serverAddress" env:"SERVER_ADDRESS"`
	Secret        string `yaml:"secret" env:"SECRET"`

	HandshakeTimeout  time.Duration `yaml:"handshakeTimeout" env:"HANDSHAKE_TIMEOUT"`
	ReadTimeout       time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"writeTimeout" env:"WRITE_TIMEOUT"`
	ReconnectInterval time.Duration `yaml:"reconnectInterval" env:"RECONNECT_INTERVAL"`
	MaxReconnectDelay time.Duration `yaml:"maxReconnectDelay" env:"MAX_RECONNECT_DELAY"`
	MaxReconnectTries int           `yaml:"maxReconnectTries" env:"MAX_RECONNECT_TRIES"`
	SendBuffer        int           `yaml:"sendBuffer" env:"SEND_BUFFER"`

	Log LogConfig `yaml:"log" envPrefix:"LOG_"`

	// MetricsAddress enables the Prometheus endpoint when set, e.g. ":9100".
	MetricsAddress string `yaml:"metricsAddress" env:"METRICS_ADDRESS"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Sources names the optional inputs to Load. Empty paths are skipped.
type Sources struct {
	File    string
	EnvFile string
}

// Default returns the configuration used before any source is applied.
func Default() Config {
	t := transport.DefaultConfig()
	return Config{
		HandshakeTimeout:  t.HandshakeTimeout,
		ReadTimeout:       t.ReadTimeout,
		WriteTimeout:      t.WriteTimeout,
		ReconnectInterval: t.ReconnectInterval,
		MaxReconnectDelay: t.MaxReconnectDelay,
		MaxReconnectTries: t.MaxReconnectTries,
		SendBuffer:        t.SendBuffer,
		Log:               LogConfig{Level: "info", Format: "text"},
	}
}

// Load applies every source over Default and validates the result.
func Load(src Sources) (Config, error) {
	cfg := Default()
	if src.File != "" {
		if err := loadFile(src.File, &cfg); err != nil {
			return Config{}, err
		}
	}
	if src.EnvFile != "" {
		if err := godotenv.Load(src.EnvFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", src.EnvFile, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Transport converts the connection settings.
func (c Config) Transport() transport.Config {
	return transport.Config{
		URL:               c.ServerAddress,
		Secret:            c.Secret,
		HandshakeTimeout:  c.HandshakeTimeout,
		ReadTimeout:       c.ReadTimeout,
		WriteTimeout:      c.WriteTimeout,
		ReconnectInterval: c.ReconnectInterval,
		MaxReconnectDelay: c.MaxReconnectDelay,
		MaxReconnectTries: c.MaxReconnectTries,
		SendBuffer:        c.SendBuffer,
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Transport().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("sendBuffer must be positive"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if !logging.ValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
