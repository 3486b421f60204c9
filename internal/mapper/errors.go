// SPDX-License-Identifier: MPL-2.0

package mapper

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshake is the sentinel error wrapped by HandshakeError.
	ErrHandshake = errors.New("mapper handshake failed")

	// ErrInvalidInvocation is the sentinel error wrapped by InvocationError.
	ErrInvalidInvocation = errors.New("invalid mapper invocation")

	// ErrQueryFailed is the sentinel error wrapped by QueryError.
	ErrQueryFailed = errors.New("mapper query failed")
)

type (
	// HandshakeError is returned by Open when the mapper does not accept the
	// connection. Message holds the mapper's error text; Err holds a
	// transport failure, if that is what ended the handshake.
	HandshakeError struct {
		Invocation string
		Message    string
		Err        error
	}

	// InvocationError reports a descriptor that cannot be parsed.
	InvocationError struct {
		Invocation string
		Reason     string
	}

	// QueryError carries the error text a mapper answered for a name.
	QueryError struct {
		Name    string
		Message string
	}

	// ProgramError reports an abnormal exit of a spawned mapper program.
	ProgramError struct {
		Program string
		Err     error
	}
)

// Error implements the error interface for HandshakeError.
func (e *HandshakeError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("failed mapper handshake %q: %v", e.Invocation, e.Err)
	case e.Message != "":
		return fmt.Sprintf("failed mapper handshake %q: %s", e.Invocation, e.Message)
	default:
		return fmt.Sprintf("failed mapper handshake %q", e.Invocation)
	}
}

// Unwrap returns ErrHandshake and the transport error, if any.
func (e *HandshakeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrHandshake, e.Err}
	}
	return []error{ErrHandshake}
}

// Error implements the error interface for InvocationError.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("invalid mapper invocation %q: %s", e.Invocation, e.Reason)
}

// Unwrap returns ErrInvalidInvocation for errors.Is() compatibility.
func (e *InvocationError) Unwrap() error { return ErrInvalidInvocation }

// Error implements the error interface for QueryError.
func (e *QueryError) Error() string {
	return fmt.Sprintf("mapper query for %q: %s", e.Name, e.Message)
}

// Unwrap returns ErrQueryFailed for errors.Is() compatibility.
func (e *QueryError) Unwrap() error { return ErrQueryFailed }

// Error implements the error interface for ProgramError.
func (e *ProgramError) Error() string {
	return fmt.Sprintf("mapper program %s: %v", e.Program, e.Err)
}

// Unwrap returns the underlying wait error.
func (e *ProgramError) Unwrap() error { return e.Err }
