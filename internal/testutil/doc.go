// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include file and socket fixtures (MustWriteFile, SocketPath,
// SetConfigHome), resource cleanup (MustClose, MustStop, DeferStop), and an
// in-test mapper peer (ServePeer) that answers wire batches from a handler.
package testutil
