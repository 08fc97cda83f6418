// The main package for the progressd executable.
package main

import (
	"github.com/JakeFAU/learner-progress/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
