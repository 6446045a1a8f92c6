// Package main is the entry point for the duck-explore CLI binary.
package main

import (
	"os"

	cli "duck-explore/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
