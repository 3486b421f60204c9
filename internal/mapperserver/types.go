// SPDX-License-Identifier: MPL-2.0

package mapperserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// NetworkUnix listens on a unix domain socket.
	NetworkUnix Network = "unix"
	// NetworkTCP listens on a TCP address.
	NetworkTCP Network = "tcp"

	defaultStartupTimeout  = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

var (
	// ErrInvalidNetwork is the sentinel error wrapped by InvalidNetworkError.
	ErrInvalidNetwork = errors.New("invalid network")
	// ErrInvalidServerConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidServerConfig = errors.New("invalid mapper server config")
)

type (
	// Network selects the listener type.
	Network string

	// Config holds immutable configuration for the mapper server.
	Config struct {
		// Network is "unix" or "tcp".
		Network Network
		// Address is the socket path or host:port to listen on.
		Address string
		// StartupTimeout bounds how long Start waits for the listener (default: 5s).
		StartupTimeout time.Duration
		// ShutdownTimeout bounds how long Stop waits for connections (default: 10s).
		ShutdownTimeout time.Duration
		// Logger receives server logs; nil uses the default logger.
		Logger *log.Logger
	}

	// InvalidNetworkError is returned when a Network value is not supported.
	InvalidNetworkError struct {
		Value Network
	}

	// InvalidConfigError collects field-level validation errors of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// String returns the string representation of the Network.
func (n Network) String() string { return string(n) }

// Validate returns nil if the Network is "unix" or "tcp".
func (n Network) Validate() error {
	switch n {
	case NetworkUnix, NetworkTCP:
		return nil
	default:
		return &InvalidNetworkError{Value: n}
	}
}

// Error implements the error interface for InvalidNetworkError.
func (e *InvalidNetworkError) Error() string {
	return fmt.Sprintf("invalid network %q (valid: unix, tcp)", e.Value)
}

// Unwrap returns ErrInvalidNetwork for errors.Is() compatibility.
func (e *InvalidNetworkError) Unwrap() error { return ErrInvalidNetwork }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid mapper server config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidServerConfig and the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidServerConfig}, e.FieldErrors...)
}

// DefaultConfig returns a configuration listening on a loopback TCP port
// chosen by the system.
func DefaultConfig() Config {
	return Config{
		Network:         NetworkTCP,
		Address:         "127.0.0.1:0",
		StartupTimeout:  defaultStartupTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// Validate reports every invalid field of c.
func (c Config) Validate() error {
	var errs []error
	if err := c.Network.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Address) == "" {
		errs = append(errs, errors.New("address must be non-empty"))
	}
	if c.StartupTimeout < 0 {
		errs = append(errs, fmt.Errorf("startup timeout %s must not be negative", c.StartupTimeout))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout %s must not be negative", c.ShutdownTimeout))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}
