// SPDX-License-Identifier: MPL-2.0

//go:build unix

package resolver

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// repoDir holds a directory descriptor so probes are resolved relative to
// the repository even if the working directory changes.
type repoDir struct {
	fd int
	st dirState
}

func newRepoDir() repoDir {
	return repoDir{fd: -1}
}

func (d *repoDir) state() dirState { return d.st }

func (d *repoDir) open(path string) error {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC|unix.O_DIRECTORY, 0)
	if err != nil {
		d.st = dirFailed
		return fmt.Errorf("open %s: %w", path, err)
	}
	d.fd = fd
	d.st = dirOpen
	return nil
}

// isRegular reports whether name is a regular file, relative to the
// repository directory or, when cwd is set, to the working directory.
// Any stat failure counts as absent.
func (d *repoDir) isRegular(name string, cwd bool) bool {
	dirfd := unix.AT_FDCWD
	if !cwd {
		if d.st != dirOpen {
			return false
		}
		dirfd = d.fd
	}

	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, 0); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFREG
}

func (d *repoDir) close() error {
	if d.st != dirOpen {
		return nil
	}
	d.st = dirFailed
	fd := d.fd
	d.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close repository directory: %w", err)
	}
	return nil
}
