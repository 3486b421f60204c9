// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package resolver

import (
	"fmt"
	"os"
)

// repoDir keeps the repository as an os.Root on platforms without openat.
type repoDir struct {
	root *os.Root
	st   dirState
}

func newRepoDir() repoDir {
	return repoDir{}
}

func (d *repoDir) state() dirState { return d.st }

func (d *repoDir) open(path string) error {
	root, err := os.OpenRoot(path)
	if err != nil {
		d.st = dirFailed
		return fmt.Errorf("open %s: %w", path, err)
	}
	d.root = root
	d.st = dirOpen
	return nil
}

func (d *repoDir) isRegular(name string, cwd bool) bool {
	var (
		info os.FileInfo
		err  error
	)
	switch {
	case cwd:
		info, err = os.Stat(name)
	case d.st == dirOpen:
		info, err = d.root.Stat(name)
	default:
		return false
	}
	return err == nil && info.Mode().IsRegular()
}

func (d *repoDir) close() error {
	if d.st != dirOpen {
		return nil
	}
	d.st = dirFailed
	return d.root.Close()
}
