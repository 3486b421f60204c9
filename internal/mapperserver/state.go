// SPDX-License-Identifier: MPL-2.0

package mapperserver

import "errors"

// Server states. Created -> Starting -> Running -> Stopping -> Stopped, with
// Failed reachable from Starting or Running.
const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

// ErrStoppedDuringStart is returned by Start when Stop ran before the
// listener was ready.
var ErrStoppedDuringStart = errors.New("mapper server stopped during start")

// State is a position in the server lifecycle.
type State int32

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// shuttingDown reports whether Stop has taken over the server.
func (s State) shuttingDown() bool {
	return s == StateStopping || s == StateStopped
}
