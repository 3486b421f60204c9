// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cxxmod/modmapper/internal/config"
	"github.com/cxxmod/modmapper/internal/issue"
)

// newConfigCommand creates the `modmapper config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage modmapper configuration",
		Long: `Manage modmapper configuration.

Configuration is stored in:
  - Linux: ~/.config/modmapper/config.cue
  - macOS: ~/Library/Application Support/modmapper/config.cue
  - Windows: %APPDATA%\modmapper\config.cue

Every value can be overridden with a MODMAPPER_ environment variable, e.g.
MODMAPPER_RESOLVER_REPO for resolver.repo. A .env file in the working
directory is read first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		RunE: func(_ *cobra.Command, _ []string) error {
			return showConfig(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := config.CreateDefaultConfig("")
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Configuration file:"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(_ *cobra.Command, _ []string) error {
			if app.cfgFile != "" {
				fmt.Fprintln(app.stdout, app.cfgFile)
				return nil
			}
			path, err := config.ConfigFilePath("")
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	return cfgCmd
}

func showConfig(app *App) error {
	if app.cfgErr != nil {
		return newServiceError(app.cfgErr, issue.ConfigLoadFailedId, "")
	}
	fmt.Fprint(app.stdout, config.GenerateCUE(app.config()))
	return nil
}
