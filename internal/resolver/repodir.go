// SPDX-License-Identifier: MPL-2.0

package resolver

const (
	dirUnopened dirState = iota
	dirOpen
	// dirFailed is permanent: the open is not retried.
	dirFailed
)

type dirState int
