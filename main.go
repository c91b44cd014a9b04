// The main package for the prospect-ranker executable.
package main

import (
	"github.com/JakeFAU/prospect-ranker/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
