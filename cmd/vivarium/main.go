package main

import (
	"os"

	"vivarium/cmd/vivarium/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
