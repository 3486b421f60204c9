// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cxxmod/modmapper/internal/issue"
	"github.com/cxxmod/modmapper/internal/mapper"
	"github.com/cxxmod/modmapper/internal/protocol"
)

// Query verbs accepted by `modmapper query`.
const (
	verbRepo      = "repo"
	verbExport    = "export"
	verbImport    = "import"
	verbTranslate = "translate"
	verbCompiled  = "compiled"
	verbCMI       = "cmi"
)

var queryVerbs = []string{verbRepo, verbExport, verbImport, verbTranslate, verbCompiled, verbCMI}

type queryFlags struct {
	invocation string
	ident      string
	fullPath   bool
}

func newQueryCommand(app *App) *cobra.Command {
	var f queryFlags

	cmd := &cobra.Command{
		Use:   "query VERB [NAME...]",
		Short: "Send requests to a module mapper",
		Long: `Connect to a module mapper and send one batch of requests.

Verbs:
  repo        print the repository the mapper announced
  export      where the CMI of each module is written
  import      where the CMI of each module is read
  translate   whether each header can be imported as a header unit
  compiled    announce that each module's CMI was written
  cmi         the CMI path of each header file, under the repository

The mapper is named by an invocation (--mapper, or mapper.invocation in the
config): empty for the built-in resolver, <N>M for inherited descriptors,
=path for a unix socket, |program to spawn one, host:port for TCP, or a
tuple file. A trailing ?ident sets the identity presented on connect.`,
		Example: `  modmapper query --mapper =/tmp/mapper.sock import std.core
  modmapper query --mapper 'mods.map?build' export foo.bar foo.baz
  modmapper query translate ./include/vector.h`,
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: queryVerbs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("mapper") {
				f.invocation = app.config().Mapper.Invocation
			}
			return runQuery(cmd.Context(), app, f, args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&f.invocation, "mapper", "", "mapper invocation (default from config, else the built-in resolver)")
	cmd.Flags().StringVar(&f.ident, "ident", "", "identity presented on connect when the invocation has no ?ident")
	cmd.Flags().BoolVar(&f.fullPath, "full-path", false, "place relative answers under the announced repository")

	return cmd
}

func runQuery(ctx context.Context, app *App, f queryFlags, verb string, names []string) (err error) {
	if verr := validateQuery(verb, names); verr != nil {
		return verr
	}

	if _, perr := mapper.ParseInvocation(f.invocation, f.ident); perr != nil {
		// Open falls back to the built-in resolver; explain why first
		renderServiceError(app.stderr, newServiceError(
			issue.WrapWithContext(perr, "parse mapper invocation", f.invocation),
			issue.InvalidInvocationId, ""))
	}

	client, openErr := mapper.Open(ctx, f.invocation,
		mapper.WithIdent(f.ident),
		mapper.WithAgent(app.config().Mapper.Agent),
		mapper.WithLogger(app.componentLogger("mapper")),
	)
	if openErr != nil {
		return openError(f.invocation, openErr)
	}
	defer func() {
		cerr := client.Close()
		if cerr == nil {
			return
		}
		var progErr *mapper.ProgramError
		if err == nil && errors.As(cerr, &progErr) {
			err = newServiceError(issue.WrapWithContext(cerr, "run mapper program", f.invocation), issue.ProgramFailedId, "")
			return
		}
		app.logger.Warn("mapper close failed", "error", cerr)
	}()

	if verb == verbRepo {
		fmt.Fprintln(app.stdout, client.Repo())
		return nil
	}
	if verb == verbCMI {
		return queryCMINames(app, client, names)
	}

	batch := client.Cork()
	for _, name := range names {
		switch verb {
		case verbExport:
			batch.ModuleExport(name, protocol.FlagNone)
		case verbImport:
			batch.ModuleImport(name, protocol.FlagNone)
		case verbTranslate:
			batch.IncludeTranslate(mapper.CanonicalizeHeaderName(name), protocol.FlagNone)
		case verbCompiled:
			batch.ModuleCompiled(name, protocol.FlagNone)
		}
	}
	resps, uerr := batch.Uncork()
	if uerr != nil {
		return newServiceError(issue.WrapWithContext(uerr, "query mapper", f.invocation), issue.MapperUnavailableId, "")
	}

	var failed []error
	for i, resp := range resps {
		line, qerr := formatAnswer(client, names[i], resp, f.fullPath)
		fmt.Fprintln(app.stdout, line)
		if qerr != nil {
			failed = append(failed, qerr)
		}
	}
	if len(failed) > 0 {
		return newServiceError(&ExitError{Code: 1, Err: errors.Join(failed...)}, issue.ModuleNotFoundId, "")
	}
	return nil
}

func validateQuery(verb string, names []string) error {
	switch verb {
	case verbRepo:
		if len(names) > 0 {
			return fmt.Errorf("%s takes no names", verbRepo)
		}
	case verbExport, verbImport, verbTranslate, verbCompiled, verbCMI:
		if len(names) == 0 {
			return fmt.Errorf("%s needs at least one name", verb)
		}
	default:
		return fmt.Errorf("unknown verb %q (valid: %s)", verb, strings.Join(queryVerbs, ", "))
	}
	return nil
}

// openError classifies a mapper.Open failure for the issue catalog.
func openError(invocation string, err error) error {
	id := issue.MapperUnavailableId
	if errors.Is(err, mapper.ErrHandshake) {
		id = issue.HandshakeFailedId
	}
	return newServiceError(issue.WrapWithContext(err, "connect to mapper", invocation), id, "")
}

// formatAnswer renders one response as "name<TAB>answer". Error answers are
// also returned as a *mapper.QueryError.
func formatAnswer(client *mapper.Client, name string, resp protocol.Response, fullPath bool) (string, error) {
	switch resp.Code {
	case protocol.CodePathname:
		path := resp.Str
		if fullPath {
			path = client.MaybeAddRepoPrefix(path)
		}
		return name + "\t" + path, nil
	case protocol.CodeBool:
		return fmt.Sprintf("%s\t%t", name, resp.Bool), nil
	case protocol.CodeOK:
		return name + "\tok", nil
	case protocol.CodeError:
		return name + "\terror: " + resp.Str, &mapper.QueryError{Name: name, Message: resp.Str}
	default:
		return name + "\t" + resp.String(), nil
	}
}

func queryCMINames(app *App, client *mapper.Client, files []string) error {
	var failed []error
	for _, file := range files {
		path, err := client.CMINameForFile(mapper.CanonicalizeHeaderName(file))
		if err != nil {
			fmt.Fprintf(app.stdout, "%s\terror: %v\n", file, err)
			failed = append(failed, err)
			continue
		}
		fmt.Fprintf(app.stdout, "%s\t%s\n", file, path)
	}
	if len(failed) > 0 {
		return newServiceError(&ExitError{Code: 1, Err: errors.Join(failed...)}, issue.ModuleNotFoundId, "")
	}
	return nil
}
