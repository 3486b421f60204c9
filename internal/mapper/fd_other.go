// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package mapper

// checkFD accepts every descriptor; a bad one surfaces on first use.
func checkFD(int) error { return nil }
