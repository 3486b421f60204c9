// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/cxxmod/modmapper/internal/config"
)

type (
	// App wires CLI services and shared dependencies. Cobra handlers receive
	// an App and read configuration, streams and the logger through it.
	App struct {
		Config ConfigProvider

		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer
		logger *log.Logger

		// set by the root command's persistent flags
		cfgFile string
		verbose bool

		// loaded before any subcommand runs
		cfg    *config.Config
		cfgErr error
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}
)

// NewApp creates an App, filling unset dependencies with defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config: deps.Config,
		stdin:  deps.Stdin,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	app.logger = log.NewWithOptions(app.stderr, log.Options{Prefix: "modmapper"})
	return app
}

// loadConfig loads the configuration once per invocation. A load failure is
// reported as a warning and defaults are used; `config show` surfaces it.
func (a *App) loadConfig(ctx context.Context) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.cfgFile})
	if err != nil {
		a.logger.Warn(formatErrorForDisplay(err, a.verbose))
		a.cfgErr = err
		cfg = config.DefaultConfig()
	}
	a.cfg = cfg

	if !a.verbose {
		a.verbose = cfg.UI.Verbose
	}
	if a.verbose {
		a.logger.SetLevel(log.DebugLevel)
	}
}

// config returns the loaded configuration, or the defaults when no command
// hook has loaded it.
func (a *App) config() *config.Config {
	if a.cfg == nil {
		return config.DefaultConfig()
	}
	return a.cfg
}

// componentLogger returns a child logger tagged with the component name.
func (a *App) componentLogger(name string) *log.Logger {
	return a.logger.WithPrefix(name)
}
