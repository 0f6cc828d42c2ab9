package main

import (
	"os"

	"github.com/hangar-launcher/hangar/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
