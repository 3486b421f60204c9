// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/cxxmod/modmapper/internal/issue"
	"github.com/cxxmod/modmapper/internal/testutil"
)

// isolate points every lookup at fresh temporary directories so neither the
// developer's config nor a stray .env leaks into the test.
func isolate(t *testing.T) (cfgDir string, opts LoadOptions) {
	t.Helper()
	t.Chdir(t.TempDir())
	cfgDir = t.TempDir()
	return cfgDir, LoadOptions{
		ConfigDirPath: cfgDir,
		DotEnvPath:    filepath.Join(t.TempDir(), "missing.env"),
	}
}

func TestLoad_Defaults(t *testing.T) {
	_, opts := isolate(t)

	cfg, path, err := LoadWithPath(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want none", path)
	}

	want := DefaultConfig()
	if *cfg != *want {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestLoad_CUEFile(t *testing.T) {
	dir, opts := isolate(t)
	testutil.MustWriteFile(t, dir, "config.cue", `
resolver: {
	repo: "build/cmi"
	default_translate: false
}
server: {
	network: "tcp"
	address: "127.0.0.1:7000"
	startup_timeout: "250ms"
}
`)

	cfg, path, err := LoadWithPath(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != filepath.Join(dir, "config.cue") {
		t.Errorf("resolved path = %q", path)
	}
	if cfg.Resolver.Repo != "build/cmi" || cfg.Resolver.DefaultTranslate || !cfg.Resolver.DefaultMap {
		t.Errorf("resolver = %+v", cfg.Resolver)
	}
	if cfg.Server.Network != NetworkTCP || cfg.Server.Address != "127.0.0.1:7000" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.StartupTimeout != 250*time.Millisecond {
		t.Errorf("startup timeout = %s", cfg.Server.StartupTimeout)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout default lost: %s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_SchemaViolation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad network", `server: network: "udp"`, "server.network"},
		{"unknown field", `resolver: bogus: 1`, "bogus"},
		{"bad duration", `server: startup_timeout: "soon"`, "server.startup_timeout"},
		{"syntax", `resolver: {`, "config.cue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, opts := isolate(t)
			testutil.MustWriteFile(t, dir, "config.cue", tt.content)

			_, err := NewProvider().Load(context.Background(), opts)
			if err == nil {
				t.Fatal("Load() should fail")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) || ae.Operation != "load configuration" {
				t.Errorf("error is not an actionable load error: %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	_, opts := isolate(t)
	file := testutil.MustWriteFile(t, t.TempDir(), "custom.cue", `mapper: invocation: "=/tmp/m.sock"`)
	opts.ConfigFilePath = file

	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mapper.Invocation != "=/tmp/m.sock" {
		t.Errorf("invocation = %q", cfg.Mapper.Invocation)
	}

	opts.ConfigFilePath = filepath.Join(t.TempDir(), "nope.cue")
	if _, err := NewProvider().Load(context.Background(), opts); err == nil {
		t.Error("a missing explicit config file should be an error")
	}
}

func TestLoad_WorkingDirectoryFallback(t *testing.T) {
	_, opts := isolate(t)
	testutil.MustWriteFile(t, ".", "config.cue", `resolver: ident: "local"`)

	cfg, path, err := LoadWithPath(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != "config.cue" || cfg.Resolver.Ident != "local" {
		t.Errorf("path = %q, ident = %q", path, cfg.Resolver.Ident)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir, opts := isolate(t)
	testutil.MustWriteFile(t, dir, "config.cue", `resolver: repo: "from-file"`)
	t.Setenv("MODMAPPER_RESOLVER_REPO", "from-env")
	t.Setenv("MODMAPPER_RESOLVER_DEFAULT_MAP", "false")
	t.Setenv("MODMAPPER_SERVER_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Resolver.Repo != "from-env" {
		t.Errorf("repo = %q, want from-env", cfg.Resolver.Repo)
	}
	if cfg.Resolver.DefaultMap {
		t.Error("default_map should be overridden to false")
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("shutdown timeout = %s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	_, opts := isolate(t)
	opts.DotEnvPath = testutil.MustWriteFile(t, t.TempDir(), "test.env",
		"MODMAPPER_RESOLVER_IDENT=dotenv-ident\nMODMAPPER_RESOLVER_PREFIX=proj\n")
	t.Setenv("MODMAPPER_RESOLVER_PREFIX", "already-set")
	t.Cleanup(func() { _ = os.Unsetenv("MODMAPPER_RESOLVER_IDENT") })

	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Resolver.Ident != "dotenv-ident" {
		t.Errorf("ident = %q, want dotenv-ident", cfg.Resolver.Ident)
	}
	if cfg.Resolver.Prefix != "already-set" {
		t.Errorf(".env must not override the environment: prefix = %q", cfg.Resolver.Prefix)
	}
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	_, opts := isolate(t)
	t.Setenv("MODMAPPER_SERVER_NETWORK", "udp")

	_, err := NewProvider().Load(context.Background(), opts)
	if !errors.Is(err, ErrInvalidNetwork) {
		t.Fatalf("Load() error = %v, want ErrInvalidNetwork", err)
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("error should also match ErrInvalidConfig")
	}
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	dir, opts := isolate(t)

	cfg := DefaultConfig()
	cfg.Mapper.Invocation = "localhost:7000?build"
	cfg.Resolver.Repo = "out"
	cfg.Resolver.TupleFile = "modules.map"
	cfg.Server.Network = NetworkTCP
	cfg.UI.Verbose = true
	testutil.MustWriteFile(t, dir, "config.cue", GenerateCUE(cfg))

	got, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error = %v\n%s", err, GenerateCUE(cfg))
	}
	if *got != *cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	path, err := CreateDefaultConfig(dir)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("// edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateDefaultConfig(dir); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(path)
	if string(second) != "// edited\n" {
		t.Error("an existing config file must not be overwritten")
	}
	if !strings.Contains(string(first), `network: "unix"`) {
		t.Errorf("default config content:\n%s", first)
	}
}

func TestConfigDir_XDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG lookup applies to linux and other unix systems")
	}
	home := t.TempDir()
	testutil.SetConfigHome(t, home)

	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join(home, AppName) {
		t.Errorf("ConfigDir() = %q", dir)
	}
}

func TestFormatCUEPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		parts []string
		want  string
	}{
		{nil, ""},
		{[]string{"server", "network"}, "server.network"},
		{[]string{"items", "0", "name"}, "items[0].name"},
		{[]string{"0"}, "0"},
	}
	for _, tt := range tests {
		if got := formatCUEPath(tt.parts); got != tt.want {
			t.Errorf("formatCUEPath(%v) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}
