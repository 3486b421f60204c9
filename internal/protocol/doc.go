// SPDX-License-Identifier: MPL-2.0

// Package protocol defines the module mapper message set: the requests a
// compiler sends to resolve module and header-unit artifacts, the responses a
// resolver answers with, the per-connection session state machine, and the
// line-oriented wire codec used on pipes and sockets.
package protocol
