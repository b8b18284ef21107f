// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"coqpkg/internal/issue"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.cue")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Engine.Mode != EngineModeBest {
		t.Errorf("Engine.Mode = %q, want best", cfg.Engine.Mode)
	}
	if !slices.Equal(cfg.Build.Extensions, []string{".vo", ".cma"}) {
		t.Errorf("Build.Extensions = %v", cfg.Build.Extensions)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, path, err := Load(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want none", path)
	}
	if cfg.Packages.IndexCacheSize != 1024 {
		t.Errorf("IndexCacheSize = %d", cfg.Packages.IndexCacheSize)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
engine: {
	bin_dir: "/opt/jscoq/bin"
	mode:    "native"
}
build: extensions: [".vo"]
s3: {
	endpoint: "localhost:9000"
	bucket:   "pkgs"
	use_ssl:  false
}
`)
	cfg, used, err := Load(t.Context(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if used != path {
		t.Errorf("path = %q, want %q", used, path)
	}
	if cfg.Engine.BinDir != "/opt/jscoq/bin" || cfg.Engine.Mode != EngineModeNative {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if !slices.Equal(cfg.Build.Extensions, []string{".vo"}) {
		t.Errorf("Build.Extensions = %v", cfg.Build.Extensions)
	}
	if cfg.S3.Bucket != "pkgs" || cfg.S3.UseSSL {
		t.Errorf("S3 = %+v", cfg.S3)
	}
	// Untouched keys keep their defaults.
	if cfg.S3.Region != "us-east-1" || cfg.Log.Level != LogLevelInfo {
		t.Errorf("defaults lost: region %q, level %q", cfg.S3.Region, cfg.Log.Level)
	}
}

func TestLoad_ConfigDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.cue"), []byte(`log: level: "debug"`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, used, err := Load(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatal(err)
	}
	if used != filepath.Join(dir, "config.cue") || cfg.Log.Level != LogLevelDebug {
		t.Errorf("path %q, level %q", used, cfg.Log.Level)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("COQPKG_ENGINE_BIN_DIR", "/env/bin")
	t.Setenv("COQPKG_ENGINE_MODE", "byte")
	t.Setenv("COQPKG_S3_BUCKET", "from-env")

	path := writeConfig(t, `engine: bin_dir: "/file/bin"`)
	cfg, _, err := Load(t.Context(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.BinDir != "/env/bin" {
		t.Errorf("BinDir = %q, want the environment value", cfg.Engine.BinDir)
	}
	if cfg.Engine.Mode != EngineModeByte || cfg.S3.Bucket != "from-env" {
		t.Errorf("Mode %q, Bucket %q", cfg.Engine.Mode, cfg.S3.Bucket)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad mode", `engine: mode: "fast"`, "engine.mode"},
		{"unknown key", `compiler: "coqc"`, "compiler"},
		{"bad extension", `build: extensions: ["vo"]`, "build.extensions"},
		{"syntax", `engine: {`, "config.cue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(t.Context(), LoadOptions{ConfigFilePath: writeConfig(t, tt.content)})
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("Load() error = %v, want *issue.ActionableError", err)
			}
			if ae.Issue != issue.ConfigLoadFailedId {
				t.Errorf("Issue = %d", ae.Issue)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("COQPKG_LOG_LEVEL", "loud")
	_, _, err := Load(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("Load() error = %v, want ErrInvalidConfig and ErrInvalidLogLevel", err)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := Load(t.Context(), LoadOptions{ConfigFilePath: filepath.Join(t.TempDir(), "nope.cue")})
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v", err)
	}
}

func TestCreateDefaultConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateDefaultConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg, used, err := Load(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if used != path {
		t.Errorf("loaded %q, want %q", used, path)
	}
	def := DefaultConfig()
	if cfg.Engine != def.Engine || cfg.Packages != def.Packages || cfg.S3 != def.S3 || cfg.Log != def.Log {
		t.Errorf("round trip changed values:\n got %+v\nwant %+v", cfg, def)
	}

	// An existing file is left alone.
	if err := os.WriteFile(path, []byte(`log: level: "warn"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateDefaultConfig(dir); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); string(data) != `log: level: "warn"` {
		t.Errorf("existing config overwritten: %q", data)
	}
}

func TestConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG lookup applies to Linux")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join("/tmp/xdg", AppName) {
		t.Errorf("ConfigDir() = %q", dir)
	}
}
