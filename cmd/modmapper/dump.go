// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/cxxmod/modmapper/internal/issue"
	"github.com/cxxmod/modmapper/internal/resolver"
)

// Output formats of `modmapper dump`.
const (
	formatTuple = "tuple"
	formatTOML  = "toml"
)

// mappingDocument is the TOML shape of a dumped mapping table.
type mappingDocument struct {
	Root    string           `toml:"root,omitempty"`
	Modules []resolver.Entry `toml:"module"`
}

func newDumpCommand(app *App) *cobra.Command {
	var prefix, format string

	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print the mapping table loaded from a tuple file",
		Long: `Load a tuple file and print the resulting mapping table, sorted by name.

--format tuple writes a tuple file that loads back to the same table;
--format toml writes a [[module]] table per entry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runDump(app, args[0], prefix, format)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only apply lines carrying this prefix")
	cmd.Flags().StringVar(&format, "format", formatTuple, "output format (tuple or toml)")

	return cmd
}

func runDump(app *App, file, prefix, format string) error {
	if format != formatTuple && format != formatTOML {
		return fmt.Errorf("unknown format %q (valid: %s, %s)", format, formatTuple, formatTOML)
	}

	r := resolver.New(resolver.WithDefaultMap(false), resolver.WithLogger(app.componentLogger("resolver")))
	defer func() { _ = r.Close() }()

	if err := r.LoadTupleFile(file, prefix, false); err != nil {
		id := issue.TupleFileInvalidId
		if resolver.TupleStatus(err) < 0 {
			id = issue.TupleFileNotFoundId
		}
		return newServiceError(issue.WrapWithContext(err, "load tuple file", file), id, "")
	}

	if format == formatTOML {
		return writeTOML(app.stdout, r)
	}
	writeTuples(app.stdout, r)
	return nil
}

func writeTuples(w io.Writer, r *resolver.Resolver) {
	if repo := r.Repo(); repo != "" {
		fmt.Fprintf(w, "$root %s\n", repo)
	}
	for _, e := range r.Entries() {
		fmt.Fprintf(w, "%s %s\n", e.Name, e.Path)
	}
}

func writeTOML(w io.Writer, r *resolver.Resolver) error {
	doc := mappingDocument{Root: r.Repo(), Modules: r.Entries()}
	enc := toml.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	return nil
}
