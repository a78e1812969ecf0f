// ./main.go
package main

import (
	"github.com/uveworks/vigil/cmd"
)

// main is the entry point for the vigil CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
