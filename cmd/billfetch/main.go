// Package main is the entry point for the billfetch CLI.
package main

import (
	"os"

	"github.com/pigeonworks-llc/billfetch/cmd/billfetch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
