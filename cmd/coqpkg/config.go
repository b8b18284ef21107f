// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"coqpkg/internal/config"
)

// newConfigCommand creates the `coqpkg config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage coqpkg configuration",
		Long: `Manage coqpkg configuration.

Configuration is stored in:
  - Linux: ~/.config/coqpkg/config.cue
  - macOS: ~/Library/Application Support/coqpkg/config.cue
  - Windows: %APPDATA%\coqpkg\config.cue

Every key can be overridden from the environment, e.g.
COQPKG_ENGINE_BIN_DIR or COQPKG_LOG_LEVEL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			showConfig(app)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefaultConfig(app.ConfigDir)
			if err != nil {
				return fmt.Errorf("failed to create config: %w", err)
			}
			app.printf("%s Configuration at %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := app.ConfigDir
			if dir == "" {
				var err error
				if dir, err = config.ConfigDir(); err != nil {
					return err
				}
			}
			app.printf("Config directory: %s\n", dir)
			app.printf("Config file: %s\n", filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(app.stdout, config.GenerateCUE(app.Config))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(app *App) {
	cfg := app.Config
	keyStyle := CmdStyle
	valueStyle := SuccessStyle

	app.println(TitleStyle.Render("Current Configuration"))
	app.println()
	if app.ConfigPath != "" {
		app.printf("%s: %s\n", keyStyle.Render("Config file"), app.ConfigPath)
	} else {
		app.printf("%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}

	section := func(name string, kv ...string) {
		app.println()
		app.printf("%s:\n", keyStyle.Render(name))
		for i := 0; i+1 < len(kv); i += 2 {
			v := kv[i+1]
			if v == "" {
				v = SubtitleStyle.Render("(unset)")
			} else {
				v = valueStyle.Render(v)
			}
			app.printf("  %s: %s\n", kv[i], v)
		}
	}
	section("engine",
		"bin_dir", cfg.Engine.BinDir,
		"mode", string(cfg.Engine.Mode),
		"work_dir", cfg.Engine.WorkDir,
		"lib_dir", cfg.Engine.LibDir)
	section("packages",
		"base_uri", cfg.Packages.BaseURI,
		"index_cache_size", fmt.Sprint(cfg.Packages.IndexCacheSize))
	section("build",
		"output_dir", cfg.Build.OutputDir,
		"continue", fmt.Sprint(cfg.Build.Continue),
		"legacy_manifest", fmt.Sprint(cfg.Build.LegacyManifest),
		"extensions", strings.Join(cfg.Build.Extensions, ", "))
	secret := ""
	if cfg.S3.SecretKey != "" {
		secret = "********"
	}
	section("s3",
		"endpoint", cfg.S3.Endpoint,
		"region", cfg.S3.Region,
		"bucket", cfg.S3.Bucket,
		"prefix", cfg.S3.Prefix,
		"access_key", cfg.S3.AccessKey,
		"secret_key", secret,
		"use_ssl", fmt.Sprint(cfg.S3.UseSSL))
	section("log", "level", string(cfg.Log.Level))
}
