// Package config provides configuration management for FlashKV.
//
// Values come from, in increasing priority: built-in defaults, an optional
// config file, FLASHKV_* environment variables (also read from .env and
// .env.local) and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/flashdb/flashkv/internal/logging"
)

// EnvPrefix is the prefix of every environment variable, e.g.
// FLASHKV_MAX_BIT_OFFSET.
const EnvPrefix = "flashkv"

// Config holds the FlashKV server configuration.
type Config struct {
	// Server settings
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metrics-addr"`
	RequirePass string `mapstructure:"requirepass"`

	// Logging
	LogLevel string `mapstructure:"log-level"`
	LogJSON  bool   `mapstructure:"log-json"`

	// Connections
	MaxClients int           `mapstructure:"maxclients"`
	Timeout    time.Duration `mapstructure:"timeout"`

	// Keyspace
	MaxBitOffset   int64         `mapstructure:"max-bit-offset"`
	ExpireInterval time.Duration `mapstructure:"expire-interval"`
	HotKeysTop     int           `mapstructure:"hotkeys-top"`
	HotKeysWindow  time.Duration `mapstructure:"hotkeys-window"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":6379",
		MetricsAddr:    ":9121",
		LogLevel:       "info",
		MaxClients:     10000,
		Timeout:        0, // No timeout
		MaxBitOffset:   1<<32 - 1,
		ExpireInterval: 100 * time.Millisecond,
		HotKeysTop:     100,
		HotKeysWindow:  time.Minute,
	}
}

// RegisterFlags adds one flag per setting to fs, plus --config.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("config", "", "Path to a config file (yaml, json or toml)")
	fs.String("addr", d.Addr, "Address the RESP server listens on")
	fs.String("metrics-addr", d.MetricsAddr, "Address of the Prometheus /metrics endpoint (empty disables it)")
	fs.String("requirepass", d.RequirePass, "Password clients must send with AUTH (empty disables auth)")
	fs.String("log-level", d.LogLevel, "Log level: trace, debug, info, warn, error")
	fs.Bool("log-json", d.LogJSON, "Write logs as JSON")
	fs.Int("maxclients", d.MaxClients, "Maximum number of connected clients (0 = unlimited)")
	fs.Duration("timeout", d.Timeout, "Close idle client connections after this long (0 = never)")
	fs.Int64("max-bit-offset", d.MaxBitOffset, "Largest bit offset accepted by SETBIT")
	fs.Duration("expire-interval", d.ExpireInterval, "How often expired keys are swept (0 = only on access)")
	fs.Int("hotkeys-top", d.HotKeysTop, "Default number of keys reported by HOTKEYS")
	fs.Duration("hotkeys-window", d.HotKeysWindow, "Hot key counters are halved every window (0 = never)")
}

// InitEnv loads .env files and makes v read FLASHKV_* variables.
func InitEnv(v *viper.Viper) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load resolves the configuration from v. Flags must already be bound.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	setDefaults(v, cfg)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv is consulted for it
// during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("addr", d.Addr)
	v.SetDefault("metrics-addr", d.MetricsAddr)
	v.SetDefault("requirepass", d.RequirePass)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-json", d.LogJSON)
	v.SetDefault("maxclients", d.MaxClients)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("max-bit-offset", d.MaxBitOffset)
	v.SetDefault("expire-interval", d.ExpireInterval)
	v.SetDefault("hotkeys-top", d.HotKeysTop)
	v.SetDefault("hotkeys-window", d.HotKeysWindow)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.MaxClients < 0 {
		errs = append(errs, fmt.Errorf("maxclients must be >= 0, got %d", c.MaxClients))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be >= 0, got %s", c.Timeout))
	}
	if c.MaxBitOffset <= 0 {
		errs = append(errs, fmt.Errorf("max-bit-offset must be > 0, got %d", c.MaxBitOffset))
	}
	if c.ExpireInterval < 0 {
		errs = append(errs, fmt.Errorf("expire-interval must be >= 0, got %s", c.ExpireInterval))
	}
	if c.HotKeysTop < 0 {
		errs = append(errs, fmt.Errorf("hotkeys-top must be >= 0, got %d", c.HotKeysTop))
	}
	if c.HotKeysWindow < 0 {
		errs = append(errs, fmt.Errorf("hotkeys-window must be >= 0, got %s", c.HotKeysWindow))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
