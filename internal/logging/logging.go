// Package logging builds the structured loggers used across FlashKV.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Config holds logger configuration.
type Config struct {
	// Name is the root logger name.
	Name string
	// Level is the minimum level: trace, debug, info, warn or error.
	Level string
	// JSON switches from the human readable format to one JSON object per line.
	JSON bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Name:   "flashkv",
		Level:  "info",
		Output: os.Stderr,
	}
}

// New creates the root logger. Components derive their own with Named.
func New(cfg Config) (hclog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       cfg.Name,
		Level:      level,
		Output:     out,
		JSONFormat: cfg.JSON,
	}), nil
}

// ParseLevel converts a level name. An empty name means info.
func ParseLevel(s string) (hclog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return hclog.Info, nil
	}
	level := hclog.LevelFromString(s)
	if level == hclog.NoLevel {
		return hclog.NoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
	return level, nil
}
