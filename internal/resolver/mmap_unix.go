// SPDX-License-Identifier: MPL-2.0

//go:build unix

package resolver

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps size bytes of f read-only. The returned release function
// unmaps the view and must be called exactly once.
func mapFile(f *os.File, size int64) ([]byte, func() error, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, &MapError{Op: "mmap", Path: f.Name(), Err: err}
	}
	release := func() error {
		if err := unix.Munmap(data); err != nil {
			return &MapError{Op: "munmap", Path: f.Name(), Err: err}
		}
		return nil
	}
	return data, release, nil
}
