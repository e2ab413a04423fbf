// SPDX-License-Identifier: MPL-2.0

// Package config loads the geode CLI configuration.
//
// The file is config.cue in the platform config directory ($XDG_CONFIG_HOME/geode on
// Linux, ~/Library/Application Support/geode on macOS, %APPDATA%\geode on Windows).
// It is validated against the embedded #Config schema and merged over the defaults
// with Viper; GEODE_* environment variables override both.
package config
