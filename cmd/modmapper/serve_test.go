// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cxxmod/modmapper/internal/config"
	"github.com/cxxmod/modmapper/internal/issue"
	"github.com/cxxmod/modmapper/internal/mapper"
	"github.com/cxxmod/modmapper/internal/protocol"
	"github.com/cxxmod/modmapper/internal/testutil"
)

// startServer runs `modmapper serve` on a fresh unix socket until the test
// ends and returns the socket path.
func startServer(t *testing.T, args ...string) string {
	t.Helper()

	sock := testutil.SocketPath(t)
	app, stdout := newTestApp(t, nil, "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := executeContext(ctx, app, stdout, append([]string{"serve", "--network", "unix", "--address", sock}, args...)...)
		done <- err
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve returned %v", err)
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(sock); err == nil {
			return sock
		}
		select {
		case err := <-done:
			t.Fatalf("serve exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("socket %s never appeared", sock)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServe_Stdio(t *testing.T) {
	t.Parallel()

	in := "HELLO 1 clang ;\nMODULE-REPO ;\nMODULE-IMPORT foo.bar\nMODULE-EXPORT 'x y'\n"
	app, stdout := newTestApp(t, nil, in)

	out, err := execute(t, app, stdout, "serve", "--stdio", "--repo", "out")
	if err != nil {
		t.Fatalf("serve error = %v", err)
	}
	want := "HELLO 1 clang ;\nPATHNAME out ;\nPATHNAME foo/bar.pcm\nPATHNAME 'x y.pcm'\n"
	if out != want {
		t.Errorf("stdio output = %q, want %q", out, want)
	}
}

func TestServe_StdioRequiresHello(t *testing.T) {
	t.Parallel()

	app, stdout := newTestApp(t, nil, "MODULE-REPO\n")
	out, err := execute(t, app, stdout, "serve", "--stdio")
	if err != nil {
		t.Fatalf("serve error = %v", err)
	}
	if out != "ERROR 'not connected'\n" {
		t.Errorf("output = %q", out)
	}
}

func TestServe_TupleFileFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Resolver.TupleFile = testutil.MustWriteFile(t, t.TempDir(), "mods.map", "proj std.core lib/std-core.pcm\nother foo foo.pcm\n")
	cfg.Resolver.Prefix = "proj"
	cfg.Resolver.DefaultMap = false

	app, stdout := newTestApp(t, cfg, "HELLO 1 clang ;\nMODULE-IMPORT std.core ;\nMODULE-IMPORT foo\n")
	out, err := execute(t, app, stdout, "serve", "--stdio")
	if err != nil {
		t.Fatalf("serve error = %v", err)
	}
	want := "HELLO 1 clang ;\nPATHNAME lib/std-core.pcm ;\nERROR 'no such module'\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestServe_Suffix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args []string
		want string
	}{
		{nil, "PATHNAME foo/bar.pcm\n"},
		{[]string{"--suffix", "cmi"}, "PATHNAME foo/bar.cmi\n"},
		{[]string{"--suffix", ""}, "PATHNAME foo/bar\n"},
	}
	for _, tt := range tests {
		app, stdout := newTestApp(t, nil, "HELLO 1 clang ;\nMODULE-EXPORT foo.bar\n")
		args := append([]string{"serve", "--stdio"}, tt.args...)
		out, err := execute(t, app, stdout, args...)
		if err != nil {
			t.Fatalf("serve %v error = %v", tt.args, err)
		}
		if want := "HELLO 1 clang ;\n" + tt.want; out != want {
			t.Errorf("serve %v output = %q, want %q", tt.args, out, want)
		}
	}
}

func TestServe_MissingTupleFile(t *testing.T) {
	t.Parallel()

	app, stdout := newTestApp(t, nil, "")
	_, err := execute(t, app, stdout, "serve", "--stdio", "--tuple-file", filepath.Join(t.TempDir(), "none.map"))
	requireIssue(t, err, issue.TupleFileNotFoundId)
}

func TestServe_InvalidNetwork(t *testing.T) {
	t.Parallel()

	app, stdout := newTestApp(t, nil, "")
	_, err := execute(t, app, stdout, "serve", "--network", "udp", "--address", "x")
	requireIssue(t, err, issue.ServerStartFailedId)
}

func TestServe_Socket(t *testing.T) {
	t.Parallel()

	sock := startServer(t, "--repo", "shared")

	client, err := mapper.Open(context.Background(), "="+sock, mapper.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = client.Close() }()

	if client.Repo() != "shared" {
		t.Errorf("repo = %q, want shared", client.Repo())
	}
	resp, err := client.ModuleExport("a.b", protocol.FlagNone)
	if err != nil {
		t.Fatal(err)
	}
	if resp != protocol.PathnameResponse("a/b.pcm") {
		t.Errorf("export = %v", resp)
	}
}
