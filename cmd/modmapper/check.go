// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/cxxmod/modmapper/internal/issue"
	"github.com/cxxmod/modmapper/internal/resolver"
)

func newCheckCommand(app *App) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a tuple file",
		Long: `Parse a tuple file and report the first malformed line.

The exit status follows the tuple loader: 0 when the file is valid, 1 when a
line is malformed, 2 when the file cannot be read.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runCheck(app, args[0], prefix)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only apply lines carrying this prefix")

	return cmd
}

func runCheck(app *App, file, prefix string) error {
	r := resolver.New(resolver.WithDefaultMap(false), resolver.WithLogger(app.componentLogger("resolver")))
	defer func() { _ = r.Close() }()

	err := r.LoadTupleFile(file, prefix, false)
	status := resolver.TupleStatus(err)
	app.logger.Debug("tuple file checked", "file", file, "status", status)

	switch {
	case status == 0:
		fmt.Fprintf(app.stdout, "%s %s: %d mappings\n", SuccessStyle.Render("✓"), file, len(r.Entries()))
		if repo := r.Repo(); repo != "" {
			fmt.Fprintf(app.stdout, "  root: %s\n", CmdStyle.Render(repo))
		}
		return nil
	case status > 0:
		fmt.Fprintf(app.stdout, "%s %s: %v\n", ErrorStyle.Render("✗"), file, err)
		return newServiceError(
			&ExitError{Code: 1, Err: issue.WrapWithContext(err, "check tuple file", file)},
			issue.TupleFileInvalidId, "")
	default:
		id := issue.TupleFileInvalidId
		if errors.Is(err, fs.ErrNotExist) {
			id = issue.TupleFileNotFoundId
		}
		return newServiceError(
			&ExitError{Code: 2, Err: issue.WrapWithContext(err, "read tuple file", file)},
			id, "")
	}
}
