// The main package for the muia-rag executable.
package main

import (
	"github.com/dia-upm/muia-rag/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
