// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the CLI commands for modmapper: serving the mapper
// protocol, querying a mapper, and inspecting tuple files.
package cmd
