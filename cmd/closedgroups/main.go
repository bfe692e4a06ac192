package main

import (
	"os"

	"closedgroups/cmd/closedgroups/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
