// Package main provides the entry point for the talkie CLI.
package main

import (
	"os"

	"github.com/yungtweek/tweek.ninja-talkie/cmd/talkie/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
