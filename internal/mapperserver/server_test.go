// SPDX-License-Identifier: MPL-2.0

package mapperserver

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cxxmod/modmapper/internal/mapper"
	"github.com/cxxmod/modmapper/internal/protocol"
	"github.com/cxxmod/modmapper/internal/resolver"
	"github.com/cxxmod/modmapper/internal/testutil"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func unixConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Network: NetworkUnix,
		Address: testutil.SocketPath(t),
		Logger:  quietLogger(),
	}
}

func TestServerStartStop_Unix(t *testing.T) {
	t.Parallel()

	cfg := unixConfig(t)
	res := resolver.New(resolver.WithRepo("shared"), resolver.WithLogger(quietLogger()))
	srv := New(cfg, res)

	if srv.State() != StateCreated {
		t.Errorf("State should be Created, got %s", srv.State())
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if !srv.IsRunning() {
		t.Fatalf("Server should be running after Start(), got %s", srv.State())
	}
	if srv.Address() != cfg.Address {
		t.Errorf("Address() = %q, want %q", srv.Address(), cfg.Address)
	}

	c, err := mapper.Open(context.Background(), "="+srv.Address(), mapper.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if c.Repo() != "shared" {
		t.Errorf("Repo() = %q, want shared", c.Repo())
	}
	got, err := c.CMINameForFile("a.b")
	if err != nil {
		t.Fatalf("CMINameForFile() error = %v", err)
	}
	if got != "shared/a/b.pcm" {
		t.Errorf("CMINameForFile() = %q, want shared/a/b.pcm", got)
	}
	testutil.MustClose(t, c)

	if err := srv.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
	if srv.State() != StateStopped {
		t.Errorf("State should be Stopped, got %s", srv.State())
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}

func TestServerStartStop_TCP(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Logger = quietLogger()
	srv := New(cfg, resolver.New(resolver.WithLogger(quietLogger())))

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer testutil.MustStop(t, srv)

	c, err := mapper.Open(context.Background(), srv.Address(), mapper.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer testutil.MustClose(t, c)

	if c.Transport().Kind != mapper.TransportTCP {
		t.Errorf("transport = %s, want tcp", c.Transport().Kind)
	}
	resp, err := c.ModuleExport("m", protocol.FlagNone)
	if err != nil {
		t.Fatalf("ModuleExport() error = %v", err)
	}
	if resp != protocol.PathnameResponse("m.pcm") {
		t.Errorf("ModuleExport() = %v", resp)
	}
}

func TestServer_SharedResolver(t *testing.T) {
	t.Parallel()

	res := resolver.New(resolver.WithDefaultMap(false), resolver.WithLogger(quietLogger()))
	srv := New(unixConfig(t), res)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer testutil.MustStop(t, srv)

	first, err := mapper.Open(context.Background(), "="+srv.Address(), mapper.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer testutil.MustClose(t, first)
	second, err := mapper.Open(context.Background(), "="+srv.Address(), mapper.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer testutil.MustClose(t, second)

	if _, err := first.ModuleCompiled("lib.core", protocol.FlagNone); err != nil {
		t.Fatal(err)
	}
	resp, err := second.ModuleImport("lib.core", protocol.FlagNone)
	if err != nil {
		t.Fatal(err)
	}
	if resp != protocol.PathnameResponse("lib/core.pcm") {
		t.Errorf("second connection sees %v, want the compiled module", resp)
	}
}

func TestServer_StaleSocket(t *testing.T) {
	t.Parallel()

	cfg := unixConfig(t)
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: cfg.Address, Net: "unix"})
	if err != nil {
		t.Fatal(err)
	}
	ln.SetUnlinkOnClose(false)
	testutil.MustClose(t, ln)

	srv := New(cfg, resolver.New(resolver.WithLogger(quietLogger())))
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() over a stale socket: %v", err)
	}
	testutil.MustStop(t, srv)
}

func TestServerDoubleStart(t *testing.T) {
	t.Parallel()

	srv := New(unixConfig(t), resolver.New(resolver.WithLogger(quietLogger())))
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer testutil.MustStop(t, srv)

	if err := srv.Start(context.Background()); err == nil {
		t.Error("Second Start() should return error")
	}
}

func TestServerStopBeforeStart(t *testing.T) {
	t.Parallel()

	srv := New(unixConfig(t), resolver.New())
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop() = %v", err)
	}
	if srv.State() != StateStopped {
		t.Errorf("State should be Stopped, got %s", srv.State())
	}
	err := srv.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "create a new one") {
		t.Errorf("Start() after Stop() = %v, want a single-use error", err)
	}
}

func TestServerStart_InvalidConfig(t *testing.T) {
	t.Parallel()

	srv := New(Config{Network: "udp", Logger: quietLogger()}, resolver.New())
	err := srv.Start(context.Background())
	if !errors.Is(err, ErrInvalidServerConfig) {
		t.Fatalf("Start() error = %v, want ErrInvalidServerConfig", err)
	}
	if !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("Start() error = %v, want ErrInvalidNetwork", err)
	}
	if srv.State() != StateFailed {
		t.Errorf("State should be Failed, got %s", srv.State())
	}
	select {
	case got := <-srv.Err():
		if !errors.Is(got, ErrInvalidServerConfig) {
			t.Errorf("Err() delivered %v", got)
		}
	default:
		t.Error("expected error in channel")
	}
}

func TestServerStart_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := New(unixConfig(t), resolver.New())
	if err := srv.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() error = %v, want context.Canceled", err)
	}
	if srv.State() != StateFailed {
		t.Errorf("State should be Failed, got %s", srv.State())
	}
}

func TestServeConn(t *testing.T) {
	t.Parallel()

	srv := New(unixConfig(t), resolver.New(resolver.WithLogger(quietLogger())))
	client, server := net.Pipe()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeConn(context.Background(), server) }()

	enc := protocol.NewEncoder(client)
	dec := protocol.NewDecoder(client)

	if err := enc.WriteRequests([]protocol.Request{protocol.ModuleRepo()}); err != nil {
		t.Fatal(err)
	}
	resps, err := dec.ReadResponses()
	if err != nil {
		t.Fatal(err)
	}
	if resps[0] != protocol.ErrorResponse("not connected") {
		t.Errorf("unconnected repo query = %v", resps[0])
	}

	if err := enc.WriteRequests([]protocol.Request{
		protocol.Connect("clang", ""),
		protocol.ModuleImport("x.y", protocol.FlagNone),
		{Kind: protocol.KindConnect, Version: 1, Agent: "clang"},
	}); err != nil {
		t.Fatal(err)
	}
	resps, err = dec.ReadResponses()
	if err != nil {
		t.Fatal(err)
	}
	want := []protocol.Response{
		protocol.ConnectedResponse("clang"),
		protocol.PathnameResponse("x/y.pcm"),
		protocol.ErrorResponse("already connected"),
	}
	for i := range want {
		if resps[i] != want[i] {
			t.Errorf("response %d = %v, want %v", i, resps[i], want[i])
		}
	}

	testutil.MustClose(t, client)
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ServeConn() = %v, want nil at end of stream", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeConn did not return after the peer closed")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"unix", Config{Network: NetworkUnix, Address: "/tmp/m.sock"}, false},
		{"bad network", Config{Network: "udp", Address: "x"}, true},
		{"empty address", Config{Network: NetworkTCP, Address: "  "}, true},
		{"negative timeout", Config{Network: NetworkTCP, Address: "x", StartupTimeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidServerConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidServerConfig", err)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	states := map[State]string{
		StateCreated:  "created",
		StateStarting: "starting",
		StateRunning:  "running",
		StateStopping: "stopping",
		StateStopped:  "stopped",
		StateFailed:   "failed",
		State(42):     "unknown",
	}
	for st, want := range states {
		if st.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", st, st.String(), want)
		}
	}
	if !StateFailed.IsTerminal() || StateRunning.IsTerminal() {
		t.Error("IsTerminal() mismatch")
	}
}
