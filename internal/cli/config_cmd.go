// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-transcript/internal/config"
)

// =============================================================================
// CONFIG COMMAND
// =============================================================================

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.jsonOut {
				return app.writeJSON("config show", app.cfg)
			}
			fmt.Fprintf(app.Out, "# %s\n", app.cfgFile)
			return toml.NewEncoder(app.Out).Encode(app.cfg)
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := app.cfg.Get(args[0])
			if err != nil {
				return NewValidationError("key", args[0], err.Error(), "store.throttle_ms")
			}
			if app.jsonOut {
				return app.writeJSON("config get", map[string]any{args[0]: v})
			}
			fmt.Fprintln(app.Out, v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.setConfig(args[0], args[1])
		},
	}

	keys := &cobra.Command{
		Use:   "keys",
		Short: "List every setting key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range config.GetAllKeys() {
				v, _ := app.cfg.Get(k)
				fmt.Fprintf(app.Out, "%s = %v\n", k, v)
			}
			return nil
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(app.Out, app.cfgFile)
			return nil
		},
	}

	cmd.AddCommand(show, get, set, keys, path)
	return cmd
}

// setConfig updates key in the config file. The file's own values are
// edited, so flag and environment overrides are not written back.
func (a *App) setConfig(key, value string) error {
	cfg := config.Default()
	if _, err := os.Stat(a.cfgFile); err == nil {
		if _, err := toml.DecodeFile(a.cfgFile, cfg); err != nil {
			return NewCommandError("config", "read", err)
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return NewValidationError("key", key, err.Error(), "rigrun-transcript config set store.throttle_ms 50")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, a.cfgFile); err != nil {
		return NewCommandError("config", "write", err)
	}

	a.logger.Info("CONFIG_UPDATED", "key", key, "path", a.cfgFile)
	fmt.Fprintf(a.Out, "%s = %s\n", key, value)
	return nil
}
