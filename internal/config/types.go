// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/BomberFish/geode/internal/watch"
	"github.com/BomberFish/geode/pkg/modinfo"
)

const (
	// LogLevelDebug logs every resolution step, hook and lifecycle transition.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs resolution results and lifecycle transitions.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs failures only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs errors only.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidLogLevel is the sentinel error wrapped by InvalidLogLevelError.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level the CLI logs at.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// Config is the CLI configuration.
	Config struct {
		// ModsDir is the directory holding one subdirectory per mod.
		ModsDir string `json:"mods_dir" mapstructure:"mods_dir"`
		// DisabledMods are loaded but left disabled.
		DisabledMods []string    `json:"disabled_mods" mapstructure:"disabled_mods"`
		LogLevel     LogLevel    `json:"log_level" mapstructure:"log_level"`
		Explain      bool        `json:"explain" mapstructure:"explain"`
		Watch        WatchConfig `json:"watch" mapstructure:"watch"`

		// Source is the file the config was read from, empty when only defaults
		// and the environment were used.
		Source string `json:"-" mapstructure:"-"`
	}

	// WatchConfig configures `geode watch`.
	WatchConfig struct {
		// Enabled makes `geode resolve` keep watching after the first pass.
		Enabled  bool          `json:"enabled" mapstructure:"enabled"`
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
		Patterns []string      `json:"patterns" mapstructure:"patterns"`
		Ignore   []string      `json:"ignore" mapstructure:"ignore"`
	}

	// InvalidConfigError lists every field that failed validation.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		ModsDir:      "mods",
		DisabledMods: []string{},
		LogLevel:     LogLevelInfo,
		Watch: WatchConfig{
			Debounce: watch.DefaultDebounce,
			Patterns: watch.DefaultPatterns(),
			Ignore:   []string{},
		},
	}
}

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels,
// and a list of validation errors if it is not.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Level converts l to a charm log level. Unknown values map to info.
func (l LogLevel) Level() log.Level {
	switch l {
	case LogLevelDebug:
		return log.DebugLevel
	case LogLevelWarn:
		return log.WarnLevel
	case LogLevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig followed by every field error, so errors.Is
// matches both the sentinel and the individual problems.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Validate checks the fields that the CUE schema does not cover, which matters
// for values coming from the environment.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ModsDir) == "" {
		errs = append(errs, errors.New("mods_dir: must not be empty"))
	}
	if ok, lerrs := c.LogLevel.IsValid(); !ok {
		for _, err := range lerrs {
			errs = append(errs, fmt.Errorf("log_level: %w", err))
		}
	}
	for i, id := range c.DisabledMods {
		if err := modinfo.ValidateID(id); err != nil {
			errs = append(errs, fmt.Errorf("disabled_mods[%d]: %w", i, err))
		}
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce: must not be negative, got %s", c.Watch.Debounce))
	}
	if err := c.WatcherConfig("").Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// WatcherConfig returns the watch settings for dir. OnChange and Logger are left
// to the caller.
func (c *Config) WatcherConfig(dir string) watch.Config {
	return watch.Config{
		Dir:      dir,
		Patterns: c.Watch.Patterns,
		Ignore:   c.Watch.Ignore,
		Debounce: c.Watch.Debounce,
	}
}
