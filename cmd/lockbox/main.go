package main

import (
	"os"

	"github.com/yndnr/lockbox-go/internal/cli/command"
)

func main() {
	if err := command.Run(os.Args); err != nil {
		command.PrintError("%v", err)
		os.Exit(1)
	}
}
