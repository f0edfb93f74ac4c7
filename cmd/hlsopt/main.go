package main

import (
	"os"

	"github.com/sbenjam1n/hlsopt/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
