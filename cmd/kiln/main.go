// Package main is the entry point for the kiln CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/aidanlsb/kiln/internal/cli"
	"github.com/aidanlsb/kiln/internal/ui"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, ui.Error(err.Error()))
		}
		os.Exit(1)
	}
}
