// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// NetworkUnix serves the mapper protocol on a unix domain socket.
	// Defined locally to avoid coupling config to internal/mapperserver.
	NetworkUnix Network = "unix"
	// NetworkTCP serves the mapper protocol on a TCP address.
	NetworkTCP Network = "tcp"

	// AgentClang is the only agent name the mapper accepts.
	AgentClang = "clang"
)

var (
	// ErrInvalidNetwork is returned when a Network value is not recognized.
	ErrInvalidNetwork = errors.New("invalid network")
	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout")
	// ErrInvalidAgent is returned when the configured agent is not supported.
	ErrInvalidAgent = errors.New("invalid agent")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// Network is the listener network for `modmapper serve`.
	Network string

	// InvalidNetworkError is returned when a Network value is not recognized.
	// It wraps ErrInvalidNetwork for errors.Is() compatibility.
	InvalidNetworkError struct {
		Value Network
	}

	// InvalidTimeoutError is returned when a timeout field is zero or negative.
	InvalidTimeoutError struct {
		Field string
		Value time.Duration
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sections.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		Mapper   MapperConfig   `json:"mapper"   mapstructure:"mapper"   toml:"mapper"`
		Resolver ResolverConfig `json:"resolver" mapstructure:"resolver" toml:"resolver"`
		Server   ServerConfig   `json:"server"   mapstructure:"server"   toml:"server"`
		UI       UIConfig       `json:"ui"       mapstructure:"ui"       toml:"ui"`
	}

	// MapperConfig configures the client side used by `modmapper query`.
	MapperConfig struct {
		// Invocation is the mapper descriptor used when --mapper is not given.
		Invocation string `json:"invocation" mapstructure:"invocation" toml:"invocation"`
		// Agent is the agent name presented on connect.
		Agent string `json:"agent" mapstructure:"agent" toml:"agent"`
	}

	// ResolverConfig configures the resolver behind `modmapper serve`.
	ResolverConfig struct {
		Repo             string `json:"repo"              mapstructure:"repo"              toml:"repo"`
		Ident            string `json:"ident"             mapstructure:"ident"             toml:"ident"`
		TupleFile        string `json:"tuple_file"        mapstructure:"tuple_file"        toml:"tuple_file"`
		Prefix           string `json:"prefix"            mapstructure:"prefix"            toml:"prefix"`
		DefaultMap       bool   `json:"default_map"       mapstructure:"default_map"       toml:"default_map"`
		DefaultTranslate bool   `json:"default_translate" mapstructure:"default_translate" toml:"default_translate"`
	}

	// ServerConfig configures the mapper server listener.
	ServerConfig struct {
		Network         Network       `json:"network"          mapstructure:"network"          toml:"network"`
		Address         string        `json:"address"          mapstructure:"address"          toml:"address"`
		StartupTimeout  time.Duration `json:"startup_timeout"  mapstructure:"startup_timeout"  toml:"startup_timeout"`
		ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout" toml:"shutdown_timeout"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose" toml:"verbose"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Mapper: MapperConfig{
			Agent: AgentClang,
		},
		Resolver: ResolverConfig{
			DefaultMap:       true,
			DefaultTranslate: true,
		},
		Server: ServerConfig{
			Network:         NetworkUnix,
			Address:         "modmapper.sock",
			StartupTimeout:  5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

func (e *InvalidNetworkError) Error() string {
	return fmt.Sprintf("invalid network %q (valid: unix, tcp)", e.Value)
}

// Unwrap returns ErrInvalidNetwork for errors.Is() compatibility.
func (e *InvalidNetworkError) Unwrap() error { return ErrInvalidNetwork }

// Validate returns nil if the network is recognized.
func (n Network) Validate() error {
	switch n {
	case NetworkUnix, NetworkTCP:
		return nil
	default:
		return &InvalidNetworkError{Value: n}
	}
}

// String returns the string representation of the Network.
func (n Network) String() string { return string(n) }

func (e *InvalidTimeoutError) Error() string {
	return fmt.Sprintf("%s must be positive, got %s", e.Field, e.Value)
}

// Unwrap returns ErrInvalidTimeout for errors.Is() compatibility.
func (e *InvalidTimeoutError) Unwrap() error { return ErrInvalidTimeout }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns the sentinel and every field error.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Validate checks the constraints the CUE schema cannot see, which matter
// when values arrive from environment variables.
func (c *Config) Validate() error {
	var errs []error
	if c.Mapper.Agent != AgentClang {
		errs = append(errs, fmt.Errorf("%w %q (only %s is supported)", ErrInvalidAgent, c.Mapper.Agent, AgentClang))
	}
	if err := c.Server.Network.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.StartupTimeout <= 0 {
		errs = append(errs, &InvalidTimeoutError{Field: "server.startup_timeout", Value: c.Server.StartupTimeout})
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, &InvalidTimeoutError{Field: "server.shutdown_timeout", Value: c.Server.ShutdownTimeout})
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}
