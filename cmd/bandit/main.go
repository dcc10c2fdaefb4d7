package main

import (
	"fmt"
	"os"

	"github.com/psantana5/bandit/cmd/bandit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bandit: %v\n", err)
		os.Exit(1)
	}
}
