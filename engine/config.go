// Package engine wires the channel manager, symbolic-database
// registry, trace logger/player, and periodic scheduler into the
// command surface of spec.md §6, and owns the ambient logging and
// configuration layers of SPEC_FULL.md §4.J/§4.K.
package engine

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Config is the engine's typed configuration, read from environment
// with sane defaults (no viper/cobra).
type Config struct {
	// DefaultProbeInterfaces lists the interface ids examined on an
	// empty get_interfaces call when no enumerator reports anything.
	DefaultProbeInterfaces []string
	// TraceDir is the default directory start_logging resolves
	// relative paths against.
	TraceDir string
	// LogLevel is the logrus level name; overridden by CANSCOPE_LOG_LEVEL.
	LogLevel string
}

// DefaultConfig returns baseline settings before environment overrides.
func DefaultConfig() Config {
	return Config{
		DefaultProbeInterfaces: []string{"vcan0"},
		TraceDir:               ".",
		LogLevel:               "info",
	}
}

// LoadConfig applies environment overrides onto DefaultConfig(), per
// spec.md §6: "the only environment variable read is the standard
// logging-level variable used by the logging facade."
func LoadConfig() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("CANSCOPE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}

// NewLogger builds the root logrus logger for orchestration-level
// components, honoring cfg.LogLevel.
func NewLogger(cfg Config) *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	return log
}
