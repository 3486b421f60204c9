// SPDX-License-Identifier: MPL-2.0

// Package mapper is the compiler side of the module mapper protocol. It
// turns an invocation descriptor into a connected channel (an in-process
// resolver, inherited descriptors, a spawned program, or a socket), performs
// the connect handshake, and exposes batched queries plus the path helpers
// that make resolver answers usable by the compiler.
package mapper
