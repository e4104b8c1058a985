// Package config loads litelease settings from defaults, an optional config
// file, LITELEASE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. LITELEASE_SOURCE.
const EnvPrefix = "LITELEASE"

// Config holds the settings shared by the commands.
type Config struct {
	// Source is the database to replicate or inspect.
	Source string `mapstructure:"source"`
	// Replica is the snapshot path.
	Replica string `mapstructure:"replica"`
	// Interval is the coalescing interval for scheduled replications.
	Interval time.Duration `mapstructure:"interval"`
	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	// JournalMode, if set, is applied to the source connection held by
	// watch. Empty leaves the database's journal mode unchanged.
	JournalMode string `mapstructure:"journal_mode"`
	// LockSource takes a shared file lock on the source while replicating.
	LockSource bool `mapstructure:"lock_source"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// MetricsAddr, if set, serves Prometheus metrics at /metrics.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Interval:    time.Second,
		BusyTimeout: 5 * time.Second,
		LockSource:  true,
		LogLevel:    "info",
	}
}

// flagNames maps config keys to the flag names that may override them.
var flagNames = map[string]string{
	"source":       "source",
	"replica":      "replica",
	"interval":     "interval",
	"busy_timeout": "busy-timeout",
	"journal_mode": "journal-mode",
	"lock_source":  "lock-source",
	"log_level":    "log-level",
	"metrics_addr": "metrics-addr",
}

var journalModes = []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// Load resolves the configuration. configFile may be empty. Flags present in
// flags override every other source when set on the command line; flags not
// defined there are ignored.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("source", d.Source)
	v.SetDefault("replica", d.Replica)
	v.SetDefault("interval", d.Interval)
	v.SetDefault("busy_timeout", d.BusyTimeout)
	v.SetDefault("journal_mode", d.JournalMode)
	v.SetDefault("lock_source", d.LockSource)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("metrics_addr", d.MetricsAddr)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagNames {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.JournalMode = strings.ToUpper(cfg.JournalMode)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values that do not depend on which command runs.
func (c *Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("busy_timeout must not be negative, got %s", c.BusyTimeout))
	}
	if c.JournalMode != "" && !contains(journalModes, c.JournalMode) {
		errs = append(errs, fmt.Errorf("journal_mode %q is not one of %s", c.JournalMode, strings.Join(journalModes, ", ")))
	}
	if !contains(logLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q is not one of %s", c.LogLevel, strings.Join(logLevels, ", ")))
	}
	return errors.Join(errs...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
