// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"

	"coqpkg/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "coqpkg"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides: engine.bin_dir is read
	// from COQPKG_ENGINE_BIN_DIR.
	EnvPrefix = "COQPKG"

	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// LoadOptions defines explicit configuration inputs.
type LoadOptions struct {
	// ConfigFilePath forces a specific file, which must exist.
	ConfigFilePath string
	// ConfigDirPath replaces the platform config directory.
	ConfigDirPath string
}

// ConfigDir returns the platform configuration directory: %APPDATA% on
// Windows, ~/Library/Application Support on macOS and $XDG_CONFIG_HOME
// (default ~/.config) elsewhere.
//
//nolint:revive // ConfigDir reads better than Dir at call sites
func ConfigDir() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
		if dir == "" {
			dir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support")
	default:
		dir = os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			dir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(dir, AppName), nil
}

// Load resolves the configuration: defaults, then the config file, then
// the environment. It returns the path of the file used, or "" when only
// defaults and environment applied.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load config canceled: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := locate(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the values match the configuration schema").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Check COQPKG_* environment variables as well as the file").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}
	return &cfg, path, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("engine.bin_dir", d.Engine.BinDir)
	v.SetDefault("engine.mode", d.Engine.Mode)
	v.SetDefault("engine.work_dir", d.Engine.WorkDir)
	v.SetDefault("engine.lib_dir", d.Engine.LibDir)
	v.SetDefault("packages.base_uri", d.Packages.BaseURI)
	v.SetDefault("packages.index_cache_size", d.Packages.IndexCacheSize)
	v.SetDefault("build.output_dir", d.Build.OutputDir)
	v.SetDefault("build.continue", d.Build.Continue)
	v.SetDefault("build.legacy_manifest", d.Build.LegacyManifest)
	v.SetDefault("build.extensions", d.Build.Extensions)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.access_key", d.S3.AccessKey)
	v.SetDefault("s3.secret_key", d.S3.SecretKey)
	v.SetDefault("s3.bucket", d.S3.Bucket)
	v.SetDefault("s3.prefix", d.S3.Prefix)
	v.SetDefault("s3.use_ssl", d.S3.UseSSL)
	v.SetDefault("log.level", d.Log.Level)
}

// locate picks the config file: the explicit path, else the config
// directory, else the current directory. No file is not an error.
func locate(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'coqpkg config show' to see the defaults").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	dir := opts.ConfigDirPath
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	name := ConfigFileName + "." + ConfigFileExt
	for _, candidate := range []string{filepath.Join(dir, name), name} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into
// v. Fields are optional, so validation does not require concrete values.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	cctx := cuecontext.New()
	schemaValue := cctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}
	userValue := cctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var m map[string]any
	if err := unified.Decode(&m); err != nil {
		return formatCUEError(err, path)
	}
	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// formatCUEError reports each CUE error as "<file>: <field.path>: <msg>".
func formatCUEError(err error, path string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", path, err)
	}
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Error()
		if field := strings.Join(cueerrors.Path(e), "."); field != "" {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, field), ":"))
			msg = field + ": " + msg
		}
		lines = append(lines, msg)
	}
	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", path, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", path, strings.Join(lines, "\n  "))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GenerateCUE renders cfg as a config file.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder
	sb.WriteString("// coqpkg configuration\n\n")

	sb.WriteString("engine: {\n")
	fmt.Fprintf(&sb, "\tbin_dir: %q\n", cfg.Engine.BinDir)
	fmt.Fprintf(&sb, "\tmode: %q\n", cfg.Engine.Mode)
	if cfg.Engine.WorkDir != "" {
		fmt.Fprintf(&sb, "\twork_dir: %q\n", cfg.Engine.WorkDir)
	}
	if cfg.Engine.LibDir != "" {
		fmt.Fprintf(&sb, "\tlib_dir: %q\n", cfg.Engine.LibDir)
	}
	sb.WriteString("}\n")

	sb.WriteString("\npackages: {\n")
	fmt.Fprintf(&sb, "\tbase_uri: %q\n", cfg.Packages.BaseURI)
	fmt.Fprintf(&sb, "\tindex_cache_size: %d\n", cfg.Packages.IndexCacheSize)
	sb.WriteString("}\n")

	sb.WriteString("\nbuild: {\n")
	fmt.Fprintf(&sb, "\toutput_dir: %q\n", cfg.Build.OutputDir)
	fmt.Fprintf(&sb, "\tcontinue: %v\n", cfg.Build.Continue)
	fmt.Fprintf(&sb, "\tlegacy_manifest: %v\n", cfg.Build.LegacyManifest)
	quoted := make([]string, len(cfg.Build.Extensions))
	for i, ext := range cfg.Build.Extensions {
		quoted[i] = fmt.Sprintf("%q", ext)
	}
	fmt.Fprintf(&sb, "\textensions: [%s]\n", strings.Join(quoted, ", "))
	sb.WriteString("}\n")

	sb.WriteString("\ns3: {\n")
	for _, kv := range [][2]string{
		{"endpoint", cfg.S3.Endpoint},
		{"region", cfg.S3.Region},
		{"bucket", cfg.S3.Bucket},
		{"prefix", cfg.S3.Prefix},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&sb, "\t%s: %q\n", kv[0], kv[1])
		}
	}
	fmt.Fprintf(&sb, "\tuse_ssl: %v\n", cfg.S3.UseSSL)
	sb.WriteString("}\n")

	fmt.Fprintf(&sb, "\nlog: level: %q\n", cfg.Log.Level)
	return sb.String()
}

// CreateDefaultConfig writes the defaults to dir/config.cue unless the file
// already exists. An empty dir uses ConfigDir.
func CreateDefaultConfig(dir string) (string, error) {
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(path) {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}
