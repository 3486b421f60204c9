// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/cxxmod/modmapper/cmd/modmapper"

func main() {
	cmd.Execute()
}
