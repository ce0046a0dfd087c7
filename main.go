// The main package for the checker executable.
package main

import (
	"github.com/netflixcritic/checker/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
