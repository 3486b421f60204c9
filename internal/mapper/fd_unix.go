// SPDX-License-Identifier: MPL-2.0

//go:build unix

package mapper

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkFD reports an error when fd is not an open descriptor.
func checkFD(fd int) error {
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return fmt.Errorf("descriptor %d: %w", fd, err)
	}
	return nil
}
