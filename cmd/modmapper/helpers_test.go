// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/cxxmod/modmapper/internal/config"
	"github.com/cxxmod/modmapper/internal/issue"
)

// staticConfig is a ConfigProvider returning a fixed configuration.
type staticConfig struct {
	cfg *config.Config
	err error
}

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	c := *s.cfg
	return &c, nil
}

// newTestApp builds an App over in-memory streams and a fixed configuration.
func newTestApp(t *testing.T, cfg *config.Config, stdin string) (*App, *bytes.Buffer) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var stdout bytes.Buffer
	app := NewApp(Dependencies{
		Config: staticConfig{cfg: cfg},
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: io.Discard,
	})
	return app, &stdout
}

// execute runs the root command with args and returns what was written to
// the App's stdout.
func execute(t *testing.T, app *App, stdout *bytes.Buffer, args ...string) (string, error) {
	t.Helper()
	return executeContext(context.Background(), app, stdout, args...)
}

func executeContext(ctx context.Context, app *App, stdout *bytes.Buffer, args ...string) (string, error) {
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(ctx)
	return stdout.String(), err
}

// requireIssue fails the test unless err is a ServiceError for id.
func requireIssue(t *testing.T, err error, id issue.Id) *ServiceError {
	t.Helper()
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error %v is not a *ServiceError", err)
	}
	if svcErr.IssueID != id {
		t.Fatalf("IssueID = %d, want %d (error: %v)", svcErr.IssueID, id, err)
	}
	return svcErr
}

// exitCode returns the code of an *ExitError in err's chain, or -1.
func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}
