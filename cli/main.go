package main

import (
	"os"

	"github.com/haulwatch/haulwatch-stack/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
