// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cxxmod/modmapper/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "modmapper"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes every environment variable override
	// (MODMAPPER_RESOLVER_REPO overrides resolver.repo).
	EnvPrefix = "MODMAPPER"
	// DotEnvFile is read from the working directory before the environment
	// is consulted. Variables already set are not overwritten.
	DotEnvFile = ".env"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the modmapper configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// ConfigFilePath returns the path of the config file inside dir, or inside
// ConfigDir when dir is empty.
//
//nolint:revive // matches ConfigDir
func ConfigFilePath(dir string) (string, error) {
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs option-driven config loading. It returns the
// config and the path of the file it was read from, empty when only
// defaults and the environment applied.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	if err := loadDotEnv(opts.DotEnvPath); err != nil {
		return nil, "", err
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'modmapper config init' to create a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cuePath, err := ConfigFilePath(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		switch {
		case fileExists(cuePath):
			resolvedPath = cuePath
		case fileExists(ConfigFileName + "." + ConfigFileExt):
			resolvedPath = ConfigFileName + "." + ConfigFileExt
		}
	}

	if resolvedPath != "" {
		data, err := os.ReadFile(resolvedPath)
		if err == nil {
			err = loadCUEIntoViper(v, data, resolvedPath)
		}
		if err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("See 'modmapper config --help' for configuration options").
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
			WithSuggestion("Check " + EnvPrefix + "_* environment variables for typos").
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// setDefaults registers every key with v. AutomaticEnv only consults the
// environment for keys viper knows about.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("mapper.invocation", d.Mapper.Invocation)
	v.SetDefault("mapper.agent", d.Mapper.Agent)
	v.SetDefault("resolver.repo", d.Resolver.Repo)
	v.SetDefault("resolver.ident", d.Resolver.Ident)
	v.SetDefault("resolver.tuple_file", d.Resolver.TupleFile)
	v.SetDefault("resolver.prefix", d.Resolver.Prefix)
	v.SetDefault("resolver.default_map", d.Resolver.DefaultMap)
	v.SetDefault("resolver.default_translate", d.Resolver.DefaultTranslate)
	v.SetDefault("server.network", string(d.Server.Network))
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.startup_timeout", d.Server.StartupTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("ui.verbose", d.UI.Verbose)
}

// loadDotEnv reads path (DotEnvFile when empty) into the process
// environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		path = DotEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return issue.WrapWithContext(err, "load environment file", path)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default config file into dir (ConfigDir
// when empty) unless one exists. It returns the file path.
func CreateDefaultConfig(dir string) (string, error) {
	cfgPath, err := ConfigFilePath(dir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// modmapper configuration file\n\n")

	sb.WriteString("mapper: {\n")
	if cfg.Mapper.Invocation != "" {
		fmt.Fprintf(&sb, "\tinvocation: %q\n", cfg.Mapper.Invocation)
	}
	fmt.Fprintf(&sb, "\tagent: %q\n", cfg.Mapper.Agent)
	sb.WriteString("}\n")

	sb.WriteString("\nresolver: {\n")
	if cfg.Resolver.Repo != "" {
		fmt.Fprintf(&sb, "\trepo: %q\n", cfg.Resolver.Repo)
	}
	if cfg.Resolver.Ident != "" {
		fmt.Fprintf(&sb, "\tident: %q\n", cfg.Resolver.Ident)
	}
	if cfg.Resolver.TupleFile != "" {
		fmt.Fprintf(&sb, "\ttuple_file: %q\n", cfg.Resolver.TupleFile)
	}
	if cfg.Resolver.Prefix != "" {
		fmt.Fprintf(&sb, "\tprefix: %q\n", cfg.Resolver.Prefix)
	}
	fmt.Fprintf(&sb, "\tdefault_map: %v\n", cfg.Resolver.DefaultMap)
	fmt.Fprintf(&sb, "\tdefault_translate: %v\n", cfg.Resolver.DefaultTranslate)
	sb.WriteString("}\n")

	sb.WriteString("\nserver: {\n")
	fmt.Fprintf(&sb, "\tnetwork: %q\n", cfg.Server.Network)
	fmt.Fprintf(&sb, "\taddress: %q\n", cfg.Server.Address)
	fmt.Fprintf(&sb, "\tstartup_timeout: %q\n", cfg.Server.StartupTimeout.String())
	fmt.Fprintf(&sb, "\tshutdown_timeout: %q\n", cfg.Server.ShutdownTimeout.String())
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}
