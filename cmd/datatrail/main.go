// Package main provides the CLI for DataTrail column-level lineage.
package main

import (
	"os"

	"github.com/datatrail-labs/datatrail/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
