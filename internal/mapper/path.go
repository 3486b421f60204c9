// SPDX-License-Identifier: MPL-2.0

package mapper

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cxxmod/modmapper/internal/protocol"
)

// setRepositoryName records the repository the mapper announced. "" and "."
// mean no repository; one trailing separator is dropped.
func (c *Client) setRepositoryName(name string) {
	if name == "." {
		name = ""
	}
	if n := len(name); n > 1 && isSeparator(name[n-1]) {
		name = name[:n-1]
	}
	c.repo = name
}

// Repo returns the repository name announced during the handshake.
func (c *Client) Repo() string { return c.repo }

// MaybeAddRepoPrefix places a relative resolver answer under the repository,
// joined by exactly one separator. Absolute paths, and any path when there
// is no repository, are returned as they are.
func (c *Client) MaybeAddRepoPrefix(path string) string {
	if c.repo == "" || isAbsolute(path) {
		return path
	}
	for strings.HasPrefix(path, "./") {
		path = path[2:]
	}
	if isSeparator(c.repo[len(c.repo)-1]) {
		// the filesystem root keeps its only separator
		return c.repo + path
	}
	return c.repo + "/" + path
}

// CanonicalizeHeaderName gives a header name the "./" form the resolver
// expects for relative header units. Absolute and empty names, and names
// that already start with "./", are returned as they are.
func CanonicalizeHeaderName(name string) string {
	if name == "" || isAbsolute(name) {
		return name
	}
	if len(name) > 2 && strings.HasPrefix(name, "./") {
		return name
	}
	return "./" + name
}

// CMINameForFile asks the mapper where the CMI for file is read from and
// places the answer under the repository.
func (c *Client) CMINameForFile(file string) (string, error) {
	resp, err := c.ModuleImport(file, protocol.FlagNone)
	if err != nil {
		return "", err
	}
	switch resp.Code {
	case protocol.CodePathname:
		return c.MaybeAddRepoPrefix(resp.Str), nil
	case protocol.CodeError:
		return "", &QueryError{Name: file, Message: resp.Str}
	default:
		return "", fmt.Errorf("mapper query for %q: unexpected response %s", file, resp)
	}
}

func isAbsolute(path string) bool {
	return strings.HasPrefix(path, "/") || filepath.IsAbs(path)
}

func isSeparator(c byte) bool {
	return c == '/' || c == filepath.Separator
}
