// The main package for the cadwatch executable.
package main

import (
	"github.com/chescofire/cadwatch/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
