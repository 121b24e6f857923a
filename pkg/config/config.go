// Package config loads orchestrator tunables from an optional TOML file,
// then layers environment variable overrides on top — the same
// file-plus-env-override shape used throughout the rest of this module's
// ambient stack.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
)

// Config holds every tunable the orchestrator reads at startup.
type Config struct {
	// RedisURL is the store connection string, e.g. "redis://localhost:6379/0".
	RedisURL string `toml:"redis_url"`

	// BlockMS is how long a single XREADGROUP poll blocks waiting for new
	// completion events before looping to re-check the group deadline.
	BlockMS int `toml:"block_ms"`

	// TaskWaitTimeoutMS is the total deadline for one group's completions,
	// measured from the group's dispatch.
	TaskWaitTimeoutMS int `toml:"task_wait_timeout_ms"`

	// MaxTaskRetries is the total number of attempts a task gets: a "failed"
	// report for attempt N is re-dispatched while N < MaxTaskRetries and is
	// terminal otherwise.
	MaxTaskRetries int `toml:"max_task_retries"`
}

// Defaults mirror the values baked into the system this was ported from.
func Defaults() Config {
	return Config{
		RedisURL:          "redis://localhost:6379/0",
		BlockMS:           5000,
		TaskWaitTimeoutMS: 300000,
		MaxTaskRetries:    3,
	}
}

// Environment variable names read by applyEnv.
const (
	EnvRedisURL          = "REDIS_URL"
	EnvBlockMS           = "ORCHESTRATOR_BLOCK_MS"
	EnvTaskWaitTimeoutMS = "ORCHESTRATOR_TASK_TIMEOUT_MS"
	EnvMaxTaskRetries    = "ORCHESTRATOR_MAX_RETRIES"
)

// Load reads path (if non-empty and present) as TOML over the defaults,
// then applies environment variable overrides. A missing path is not an
// error — the defaults-plus-env result is returned as-is.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return Config{}, errors.Wrap(errors.ErrCodeValidation, err, "read config file %s", path)
			}
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrap(errors.ErrCodeValidation, err, "parse config file %s", path)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, errors.Wrap(errors.ErrCodeValidation, err, "stat config file %s", path)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvRedisURL); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv(EnvBlockMS); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "parse %s", EnvBlockMS)
		}
		cfg.BlockMS = n
	}
	if v := os.Getenv(EnvTaskWaitTimeoutMS); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "parse %s", EnvTaskWaitTimeoutMS)
		}
		cfg.TaskWaitTimeoutMS = n
	}
	if v := os.Getenv(EnvMaxTaskRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "parse %s", EnvMaxTaskRetries)
		}
		cfg.MaxTaskRetries = n
	}
	return nil
}

// BlockDuration returns BlockMS as a time.Duration.
func (c Config) BlockDuration() time.Duration {
	return time.Duration(c.BlockMS) * time.Millisecond
}

// TaskWaitTimeout returns TaskWaitTimeoutMS as a time.Duration.
func (c Config) TaskWaitTimeout() time.Duration {
	return time.Duration(c.TaskWaitTimeoutMS) * time.Millisecond
}
