// Package main is the entry point for the envelope command.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/envelope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
