// SPDX-License-Identifier: MPL-2.0

package main

import cmd "coqpkg/cmd/coqpkg"

func main() {
	cmd.Execute()
}
