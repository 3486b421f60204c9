// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrTupleSyntax is the sentinel error wrapped by LineError.
var ErrTupleSyntax = errors.New("tuple file syntax error")

type (
	// LineError reports a malformed directive in a tuple file.
	LineError struct {
		// Line is the 1-based line number of the offending directive.
		Line int
		// Directive is the unrecognized "$" name.
		Directive string
	}

	// MapError reports a failure to map a tuple file into memory.
	MapError struct {
		Op   string
		Path string
		Err  error
	}
)

// Error implements the error interface for LineError.
func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: unknown directive %q", e.Line, e.Directive)
}

// Unwrap returns ErrTupleSyntax for errors.Is() compatibility.
func (e *LineError) Unwrap() error { return ErrTupleSyntax }

// Error implements the error interface for MapError.
func (e *MapError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying OS error.
func (e *MapError) Unwrap() error { return e.Err }

// TupleStatus folds a tuple loading error into the integer convention used by
// build tooling: 0 on success, the positive line number of a malformed line,
// or a negative errno for I/O failures.
func TupleStatus(err error) int {
	if err == nil {
		return 0
	}
	var lineErr *LineError
	if errors.As(err, &lineErr) {
		return lineErr.Line
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int(errno)
	}
	return -int(syscall.EIO)
}

// LoadTupleFile opens path and reads it as a tuple file. See ReadTupleFile.
func (r *Resolver) LoadTupleFile(path, prefix string, force bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open tuple file: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only; close error carries no information

	return r.ReadTupleFile(f, prefix, force)
}

// ReadTupleFile maps f into memory for the duration of the parse and applies
// its lines to the mapping table. The mapping is released on every return.
func (r *Resolver) ReadTupleFile(f *os.File, prefix string, force bool) (err error) {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat tuple file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	data, release, err := mapFile(f, info.Size())
	if err != nil {
		return err
	}
	defer func() {
		if uerr := release(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	return r.ParseTuples(data, prefix, force)
}

// ParseTuples applies a tuple file held in buf to the mapping table.
//
// Each "\n"-terminated line holds a name and an optional path separated by
// blanks; a final line without a newline is ignored. When prefix is set,
// only lines containing a token equal to prefix apply, and the name is the
// token following it. "$root path" sets the repository and "$default" turns
// on default naming; an empty path maps the name to its default CMI name.
// Parsing stops at the first unknown directive, reported as a *LineError.
func (r *Resolver) ParseTuples(buf []byte, prefix string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lineno := 0
	for len(buf) > 0 {
		lineno++
		eol := bytes.IndexByte(buf, '\n')
		if eol < 0 {
			break
		}
		line := buf[:eol]
		buf = buf[eol+1:]

		name, file, ok := splitTuple(line, prefix)
		if !ok {
			continue
		}

		if name[0] == '$' {
			switch name {
			case "$root":
				r.setRepoLocked(file, force)
			case "$default":
				r.defaultMap = true
			default:
				return &LineError{Line: lineno, Directive: name}
			}
			continue
		}

		if file == "" {
			file = r.CMIName(name)
		}
		r.log().Debug("tuple", "module", name, "file", file)
		r.addMappingLocked(name, file, force)
	}
	return nil
}

// splitTuple extracts the name and path of one line. With a prefix, tokens
// are skipped until one equals prefix; the following token is the name.
func splitTuple(line []byte, prefix string) (name, file string, ok bool) {
	searching := prefix != ""
	pos := 0
	for {
		pos = skipBlanks(line, pos)
		end := pos
		for end < len(line) && !isBlank(line[end]) {
			end++
		}
		if pos == end {
			return "", "", false
		}

		if searching {
			if string(line[pos:end]) == prefix {
				searching = false
			}
			pos = end
			continue
		}

		rest := bytes.TrimRight(line[skipBlanks(line, end):], " \t")
		return string(line[pos:end]), string(rest), true
	}
}

func skipBlanks(line []byte, pos int) int {
	for pos < len(line) && isBlank(line[pos]) {
		pos++
	}
	return pos
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }
