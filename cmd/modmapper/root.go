// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/cxxmod/modmapper/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the modmapper command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "modmapper",
		Short: "C++ module mapper: resolve module names to compiled interface files",
		Long: TitleStyle.Render("modmapper") + SubtitleStyle.Render(" - C++ module mapper") + `

modmapper answers the module mapper protocol spoken by compilers: where the
compiled module interface (CMI) of a named module or header unit lives, and
whether an #include can be translated into a header-unit import.

` + SubtitleStyle.Render("Examples:") + `
  modmapper serve --address /tmp/mapper.sock    Serve a mapper on a unix socket
  modmapper serve --stdio --tuple-file mods.map Serve one compiler over stdin/stdout
  modmapper query --mapper mods.map import foo  Ask a mapper where foo's CMI is
  modmapper check mods.map                      Validate a tuple file
  modmapper config show                         Show current configuration`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.loadConfig(cmd.Context())
		},
	}

	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&app.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/modmapper/config.cue)")

	root.AddCommand(
		newServeCommand(app),
		newQueryCommand(app),
		newCheckCommand(app),
		newDumpCommand(app),
		newConfigCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	root := NewRootCommand(app)

	// fang.WithVersion because fang overrides root.Version
	err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err == nil {
		return
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		renderServiceError(app.stderr, svcErr)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(1)
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
