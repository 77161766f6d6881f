// SPDX-License-Identifier: MIT

// Package config loads pacer's runtime configuration from environment
// variables only (spec.md §6.2): no config file, no hot-reload.
//
// Reference: internal/config/koanf.go's KoanfConfig (env-over-YAML via
// koanf.New(".") + env.Provider with a field-splitting TransformFunc). This
// package keeps the same koanf foundation for the one source it still has
// and drops the file.Provider/yaml.Parser/Watch machinery entirely, since
// there is no YAML-shaped configuration in this tool.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the only recognized environment variable prefix.
const EnvPrefix = "PACER"

// Config is pacer's full runtime configuration.
type Config struct {
	// StateDir overrides the default state directory
	// (filepath.Join(os.TempDir(), "pacer")) when non-empty.
	StateDir string

	// Debug enables debug tracing to DebugLog (or stderr if unset).
	Debug bool

	// DebugLog is a destination file path for debug tracing; stderr if
	// empty.
	DebugLog string
}

// Load reads PACER_STATE_DIR, PACER_DEBUG, and PACER_DEBUG_LOG from the
// process environment.
func Load() (Config, error) {
	k := koanf.New(".")

	provider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix + "_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, EnvPrefix+"_")
			return strings.ToLower(key), value
		},
	})
	if err := k.Load(provider, nil); err != nil {
		return Config{}, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := Config{
		StateDir: k.String("state_dir"),
		DebugLog: k.String("debug_log"),
	}

	if raw := k.String("debug"); raw != "" {
		debug, err := parseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s_DEBUG: %w", EnvPrefix, err)
		}
		cfg.Debug = debug
	}

	return cfg, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "true":
		return true, nil
	case "0", "false", "":
		return false, nil
	default:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b, nil
		}
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

// OpenDebugLog opens cfg.DebugLog for append, exactly as the teacher opens
// its log files, or returns os.Stderr when no path is configured.
func OpenDebugLog(cfg Config) (*os.File, error) {
	if cfg.DebugLog == "" {
		return os.Stderr, nil
	}
	f, err := os.OpenFile(cfg.DebugLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("config: open debug log %s: %w", cfg.DebugLog, err)
	}
	return f, nil
}
