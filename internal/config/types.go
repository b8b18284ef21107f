// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// EngineModeByte runs the bytecode engine through ocamlrun.
	EngineModeByte EngineMode = "byte"
	// EngineModeNative runs the native engine executable.
	EngineModeNative EngineMode = "native"
	// EngineModeBest prefers native and falls back to bytecode.
	EngineModeBest EngineMode = "best"

	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidEngineMode is returned for an unknown engine mode.
	ErrInvalidEngineMode = errors.New("invalid engine mode")
	// ErrInvalidLogLevel is returned for an unknown log level.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// EngineMode selects the engine executable.
	EngineMode string

	// LogLevel is a logging threshold.
	LogLevel string

	// Config is the full application configuration.
	Config struct {
		Engine   EngineConfig   `json:"engine" mapstructure:"engine"`
		Packages PackagesConfig `json:"packages" mapstructure:"packages"`
		Build    BuildConfig    `json:"build" mapstructure:"build"`
		S3       S3Config       `json:"s3" mapstructure:"s3"`
		Log      LogConfig      `json:"log" mapstructure:"log"`
	}

	// EngineConfig locates and runs the proof engine.
	EngineConfig struct {
		// BinDir holds the engine executables and bundled packages.
		BinDir string     `json:"bin_dir" mapstructure:"bin_dir"`
		Mode   EngineMode `json:"mode" mapstructure:"mode"`
		// WorkDir is the engine's working directory; empty uses a
		// temporary directory per run.
		WorkDir string `json:"work_dir" mapstructure:"work_dir"`
		// LibDir receives installed packages; empty uses WorkDir/lib.
		LibDir string `json:"lib_dir" mapstructure:"lib_dir"`
	}

	// PackagesConfig locates package manifests and archives.
	PackagesConfig struct {
		// BaseURI is prefixed to NAME.json when populating the index.
		BaseURI        string `json:"base_uri" mapstructure:"base_uri"`
		IndexCacheSize int    `json:"index_cache_size" mapstructure:"index_cache_size"`
	}

	// BuildConfig holds build defaults; flags override them.
	BuildConfig struct {
		OutputDir      string   `json:"output_dir" mapstructure:"output_dir"`
		Continue       bool     `json:"continue" mapstructure:"continue"`
		LegacyManifest bool     `json:"legacy_manifest" mapstructure:"legacy_manifest"`
		Extensions     []string `json:"extensions" mapstructure:"extensions"`
	}

	// S3Config describes the bucket used by s3:// URIs and publish.
	S3Config struct {
		Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
		Region    string `json:"region" mapstructure:"region"`
		AccessKey string `json:"access_key" mapstructure:"access_key"`
		SecretKey string `json:"secret_key" mapstructure:"secret_key"`
		Bucket    string `json:"bucket" mapstructure:"bucket"`
		Prefix    string `json:"prefix" mapstructure:"prefix"`
		UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
	}

	// LogConfig sets the default log level.
	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
	}

	// InvalidConfigError collects field errors. It wraps ErrInvalidConfig.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			BinDir: "bin",
			Mode:   EngineModeBest,
		},
		Packages: PackagesConfig{
			BaseURI:        "bin/coq",
			IndexCacheSize: 1024,
		},
		Build: BuildConfig{
			OutputDir:  "bin/coq",
			Extensions: []string{".vo", ".cma"},
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Log: LogConfig{Level: LogLevelInfo},
	}
}

// Validate checks the value.
func (m EngineMode) Validate() error {
	switch m {
	case EngineModeByte, EngineModeNative, EngineModeBest:
		return nil
	default:
		return fmt.Errorf("%w: %q (valid: byte, native, best)", ErrInvalidEngineMode, m)
	}
}

// Validate checks the value.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, l)
	}
}

// Validate checks the constraints the schema cannot see, such as values
// that arrived through the environment.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Engine.Mode.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Log.Level.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Packages.IndexCacheSize < 0 {
		errs = append(errs, fmt.Errorf("packages.index_cache_size must not be negative, got %d", c.Packages.IndexCacheSize))
	}
	for _, ext := range c.Build.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("build.extensions: %q must start with a dot", ext))
		}
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns the sentinel and every field error.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}
