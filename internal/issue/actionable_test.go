// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "connect to mapper"},
			expected: "failed to connect to mapper",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "load tuple file", Resource: "modules.map"},
			expected: "failed to load tuple file: modules.map",
		},
		{
			name:     "full context",
			err:      &ActionableError{Operation: "load tuple file", Resource: "modules.map", Cause: fs.ErrNotExist},
			expected: "failed to load tuple file: modules.map: file does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_ErrorsIs(t *testing.T) {
	t.Parallel()

	err := WrapWithContext(fmt.Errorf("open: %w", fs.ErrNotExist), "load tuple file", "x.map")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("errors.Is should see through ActionableError")
	}

	var ae *ActionableError
	if !errors.As(fmt.Errorf("outer: %w", err), &ae) || ae.Resource != "x.map" {
		t.Errorf("errors.As = %+v", ae)
	}

	if WrapWithContext(nil, "noop", "") != nil {
		t.Error("wrapping a nil error should return nil")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("dial: %w", errors.New("connection refused"))
	err := NewErrorContext().
		WithOperation("connect to mapper").
		WithResource("=/tmp/mapper.sock").
		WithSuggestion("Start the server with 'modmapper serve'").
		WithSuggestion("Check the socket path").
		Wrap(cause).
		Build()

	if len(err.Suggestions) != 2 {
		t.Fatalf("Suggestions = %v", err.Suggestions)
	}

	short := err.Format(false)
	if !strings.Contains(short, "  • Check the socket path") {
		t.Errorf("Format(false) missing suggestion:\n%s", short)
	}
	if strings.Contains(short, "Error chain") {
		t.Errorf("Format(false) should not include the chain:\n%s", short)
	}

	long := err.Format(true)
	for _, want := range []string{"Error chain:", "1. dial: connection refused", "2. connection refused"} {
		if !strings.Contains(long, want) {
			t.Errorf("Format(true) missing %q:\n%s", want, long)
		}
	}
}

func TestErrorContext_RequiresOperation(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation should return nil")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without operation should return a nil error")
	}
}
