// Package main provides the querymap CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/querymap/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
