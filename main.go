// The main package for the feeds executable.
package main

import (
	"github.com/JakeFAU/realtime-feeds/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
