// Package main is the entry point for the loopcast application.
package main

import (
	"os"

	"loopcast/cmd/loopcast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
