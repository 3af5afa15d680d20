package main

import (
	"fmt"
	"os"

	"github.com/ekemper/leadgen/cmd/leadgen/commands"
)

func main() {
	if err := commands.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
