// SPDX-License-Identifier: MPL-2.0

// Package mapperserver serves a resolver to out-of-process compilers over a
// unix domain socket, a TCP endpoint, or a single stream such as stdio. Each
// connection is its own synchronous protocol session; the resolver is shared.
package mapperserver
