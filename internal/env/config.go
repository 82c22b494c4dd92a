package env

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/sethvargo/go-envconfig"

	"github.com/luma/vici/client"
)

type Config struct {
	// Socket is the daemon's VICI socket
	Socket string `toml:"socket" env:"VICI_SOCKET,overwrite"`

	// MaxPending limits queued commands, see client.Options
	MaxPending int `toml:"max_pending" env:"VICI_MAX_PENDING,overwrite"`

	LogLevel    string `toml:"log_level" env:"VICI_LOG_LEVEL,overwrite"`
	LogEncoding string `toml:"log_encoding" env:"VICI_LOG_ENCODING,overwrite"`

	// HTTPHost and HTTPPort are where `vici serve` listens
	HTTPHost  string `toml:"http_host" env:"VICI_HTTP_HOST,overwrite"`
	HTTPPort  int    `toml:"http_port" env:"VICI_HTTP_PORT,overwrite"`
	DebugHTTP bool   `toml:"debug_http" env:"VICI_DEBUG_HTTP,overwrite"`

	// MaxEvents caps how many events are kept per event name, zero keeps all
	MaxEvents int `toml:"max_events" env:"VICI_MAX_EVENTS,overwrite"`
}

func Default() Config {
	return Config{
		Socket:      client.DefaultSocket,
		LogLevel:    "info",
		LogEncoding: "json",
		HTTPHost:    "127.0.0.1",
		HTTPPort:    7364,
		MaxEvents:   1000,
	}
}

// LoadConfig starts from the defaults and applies, in order, the TOML file at
// path (skipped when path is empty), .env.local and the environment.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	config := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(".env.local"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env.local: %w", err)
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Socket == "" {
		return errors.New("socket must not be empty")
	}

	if c.MaxPending < 0 {
		return fmt.Errorf("max_pending must not be negative, got %d", c.MaxPending)
	}

	if c.MaxEvents < 0 {
		return fmt.Errorf("max_events must not be negative, got %d", c.MaxEvents)
	}

	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port out of range: %d", c.HTTPPort)
	}

	switch c.LogEncoding {
	case "json", "console":
	default:
		return fmt.Errorf("log_encoding must be json or console, got %q", c.LogEncoding)
	}

	return nil
}
