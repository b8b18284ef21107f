// SPDX-License-Identifier: MPL-2.0

// Package config loads coqpkg settings with Viper, reading an optional CUE
// file validated against an embedded schema (config_schema.cue) and
// honoring COQPKG_* environment overrides.
//
// The file is looked up at ~/.config/coqpkg/config.cue (XDG equivalent on
// Linux, ~/Library/Application Support/coqpkg/config.cue on macOS,
// %APPDATA%\coqpkg\config.cue on Windows) and then ./config.cue.
package config
