// Package main provides the entry point for the inspection service.
package main

import (
	"fmt"
	"os"

	"github.com/triage-ai/inspection/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
