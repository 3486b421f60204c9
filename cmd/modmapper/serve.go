// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/cxxmod/modmapper/internal/config"
	"github.com/cxxmod/modmapper/internal/issue"
	"github.com/cxxmod/modmapper/internal/mapperserver"
	"github.com/cxxmod/modmapper/internal/resolver"
)

// serveFlags holds the flags of `modmapper serve`. Unset flags fall back to
// the configuration file.
type serveFlags struct {
	network          string
	address          string
	stdio            bool
	tupleFile        string
	prefix           string
	repo             string
	ident            string
	defaultMap       bool
	defaultTranslate bool
	suffix           string
}

func newServeCommand(app *App) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the module mapper protocol",
		Long: `Serve the module mapper protocol on a unix socket or TCP address.

Every connection gets its own session over one shared mapping table. With
--stdio a single session is served over standard input and output, which
suits compilers that spawn the mapper as a program ("|modmapper serve --stdio").`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.config()
			applyServeFlags(cmd, &f, cfg)
			return runServe(cmd.Context(), app, cfg, f)
		},
	}

	d := config.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVar(&f.network, "network", string(d.Server.Network), "listener network (unix or tcp)")
	flags.StringVar(&f.address, "address", d.Server.Address, "socket path or host:port to listen on")
	flags.BoolVar(&f.stdio, "stdio", false, "serve one session over stdin/stdout")
	flags.StringVar(&f.tupleFile, "tuple-file", "", "tuple file to prime the mapping table")
	flags.StringVar(&f.prefix, "prefix", "", "only apply tuple lines carrying this prefix")
	flags.StringVar(&f.repo, "repo", "", "repository root announced to clients")
	flags.StringVar(&f.ident, "ident", "", "identity clients must present (empty accepts any)")
	flags.BoolVar(&f.defaultMap, "default-map", d.Resolver.DefaultMap, "give unmapped modules default names")
	flags.BoolVar(&f.defaultTranslate, "default-translate", d.Resolver.DefaultTranslate, "probe the repository for header-unit CMIs")
	flags.StringVar(&f.suffix, "suffix", resolver.DefaultSuffix, "file extension of default CMI names")

	return cmd
}

// applyServeFlags overrides cfg with the flags the user set explicitly.
func applyServeFlags(cmd *cobra.Command, f *serveFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("network") {
		cfg.Server.Network = config.Network(f.network)
	}
	if changed("address") {
		cfg.Server.Address = f.address
	}
	if changed("tuple-file") {
		cfg.Resolver.TupleFile = f.tupleFile
	}
	if changed("prefix") {
		cfg.Resolver.Prefix = f.prefix
	}
	if changed("repo") {
		cfg.Resolver.Repo = f.repo
	}
	if changed("ident") {
		cfg.Resolver.Ident = f.ident
	}
	if changed("default-map") {
		cfg.Resolver.DefaultMap = f.defaultMap
	}
	if changed("default-translate") {
		cfg.Resolver.DefaultTranslate = f.defaultTranslate
	}
}

func runServe(ctx context.Context, app *App, cfg *config.Config, f serveFlags) error {
	r, err := newResolver(app, cfg.Resolver, resolver.WithSuffix(f.suffix))
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	srv := mapperserver.New(mapperserver.Config{
		Network:         mapperserver.Network(cfg.Server.Network),
		Address:         cfg.Server.Address,
		StartupTimeout:  cfg.Server.StartupTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          app.componentLogger("mapper-server"),
	}, r)

	if f.stdio {
		return srv.ServeConn(ctx, struct {
			io.Reader
			io.Writer
		}{app.stdin, app.stdout})
	}

	if err := srv.Start(ctx); err != nil {
		return newServiceError(
			issue.WrapWithContext(err, "start mapper server", cfg.Server.Address),
			issue.ServerStartFailedId, "")
	}
	app.logger.Info("serving module mapper", "network", srv.Network(), "address", srv.Address())

	select {
	case <-ctx.Done():
	case err := <-srv.Err():
		if err != nil {
			app.logger.Error("mapper server failed", "error", err)
		}
	}

	if err := srv.Stop(); err != nil {
		return err
	}
	return srv.LastError()
}

// newResolver builds the shared resolver from cfg and primes it from the
// configured tuple file. A malformed tuple file keeps the mappings read
// before the bad line; a missing one is an error.
func newResolver(app *App, cfg config.ResolverConfig, extra ...resolver.Option) (*resolver.Resolver, error) {
	opts := []resolver.Option{
		resolver.WithRepo(cfg.Repo),
		resolver.WithIdent(cfg.Ident),
		resolver.WithDefaultMap(cfg.DefaultMap),
		resolver.WithDefaultTranslate(cfg.DefaultTranslate),
		resolver.WithLogger(app.componentLogger("resolver")),
	}
	r := resolver.New(append(opts, extra...)...)
	if cfg.TupleFile == "" {
		return r, nil
	}

	err := r.LoadTupleFile(cfg.TupleFile, cfg.Prefix, false)
	switch {
	case err == nil:
		app.logger.Debug("tuple file loaded", "file", cfg.TupleFile, "entries", len(r.Entries()))
	case errors.Is(err, fs.ErrNotExist):
		_ = r.Close()
		return nil, newServiceError(
			issue.WrapWithContext(err, "load tuple file", cfg.TupleFile),
			issue.TupleFileNotFoundId, "")
	default:
		app.logger.Warn("tuple file has errors, keeping mappings read so far",
			"file", cfg.TupleFile, "status", resolver.TupleStatus(err), "error", err)
	}
	return r, nil
}
