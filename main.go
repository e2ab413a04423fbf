// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/BomberFish/geode/cmd/geode"

func main() {
	cmd.Execute()
}
