// Package main provides the CADAC command-line tool.
package main

import (
	"os"

	"github.com/leapstack-labs/cadac/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
