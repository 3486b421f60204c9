// SPDX-License-Identifier: MPL-2.0

// Package resolver implements the in-process module mapper: a name to CMI
// path table primed from tuple files, default naming of unmapped modules,
// and filesystem probing for include translation. A Resolver answers the
// protocol.Handler message set.
package resolver
