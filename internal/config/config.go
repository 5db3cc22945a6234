// Package config provides YAML-based configuration loading for rawsocket programs.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/Zereker/rawsocket"
	"github.com/Zereker/rawsocket/serializer"
)

// Config is the root application configuration.
type Config struct {
	// Listen is where the server accepts connections.
	Listen ListenConfig `mapstructure:"listen"`

	// Serializer names the message encoding: json, json.batched, cbor or protobuf.
	Serializer string `mapstructure:"serializer"`

	// Debug enables frame and message tracing.
	Debug bool `mapstructure:"debug"`

	Transport TransportConfig `mapstructure:"transport"`

	Log LogConfig `mapstructure:"log"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig controls the HTTP endpoint exposing Prometheus metrics.
type MetricsConfig struct {
	// Address to serve /metrics on; empty disables the endpoint.
	Address string `mapstructure:"address"`
}

// ListenConfig is a listener address.
type ListenConfig struct {
	// Network: tcp, tcp4, tcp6 or unix
	Network string `mapstructure:"network"`
	Address string `mapstructure:"address"`
}

// TransportConfig holds per-connection limits.
type TransportConfig struct {
	MaxFrameSize int           `mapstructure:"max_frame_size"`
	BufferSize   int           `mapstructure:"buffer_size"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RateLimit is in inbound messages per second; zero disables it.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs  []string       `mapstructure:"outputs"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Listen:     ListenConfig{Network: "tcp", Address: "127.0.0.1:8080"},
		Serializer: serializer.NameJSON,
		Transport: TransportConfig{
			MaxFrameSize: 1 << 24,
			BufferSize:   16,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise from
// rawsocket.yaml in the working directory or ./configs when present.
// Environment variables with the prefix RAWSOCKET override file values,
// e.g. RAWSOCKET_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RAWSOCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Seed defaults so env-only configs work.
	v.SetDefault("listen.network", cfg.Listen.Network)
	v.SetDefault("listen.address", cfg.Listen.Address)
	v.SetDefault("serializer", cfg.Serializer)
	v.SetDefault("debug", cfg.Debug)
	v.SetDefault("transport.max_frame_size", cfg.Transport.MaxFrameSize)
	v.SetDefault("transport.buffer_size", cfg.Transport.BufferSize)
	v.SetDefault("transport.idle_timeout", cfg.Transport.IdleTimeout)
	v.SetDefault("transport.write_timeout", cfg.Transport.WriteTimeout)
	v.SetDefault("transport.rate_limit", cfg.Transport.RateLimit)
	v.SetDefault("transport.rate_burst", cfg.Transport.RateBurst)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("metrics.address", cfg.Metrics.Address)

	if path == "" {
		path = os.Getenv("RAWSOCKET_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rawsocket")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(".", "configs"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Errorf("invalid log.level: %q", c.Log.Level)
	}

	switch c.Listen.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return errors.Errorf("invalid listen.network: %q", c.Listen.Network)
	}

	if strings.TrimSpace(c.Listen.Address) == "" {
		return errors.New("listen.address is required")
	}

	if _, err := serializer.New(c.Serializer); err != nil {
		return errors.Wrap(err, "invalid serializer")
	}

	if c.Transport.MaxFrameSize < 0 || c.Transport.BufferSize < 0 {
		return errors.New("transport sizes must not be negative")
	}

	if c.Transport.RateLimit < 0 {
		return errors.Errorf("invalid transport.rate_limit: %v", c.Transport.RateLimit)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	return nil
}

// FactoryOptions converts the transport section into factory options.
func (c *Config) FactoryOptions() []rawsocket.Option {
	opts := []rawsocket.Option{
		rawsocket.DebugOption(c.Debug),
		rawsocket.MaxFrameSizeOption(c.Transport.MaxFrameSize),
		rawsocket.BufferSizeOption(c.Transport.BufferSize),
		rawsocket.IdleTimeoutOption(c.Transport.IdleTimeout),
		rawsocket.WriteTimeoutOption(c.Transport.WriteTimeout),
	}

	if c.Transport.RateLimit > 0 {
		opts = append(opts, rawsocket.RateLimitOption(c.Transport.RateLimit, c.Transport.RateBurst))
	}
	return opts
}
