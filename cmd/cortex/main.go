package main

import (
	"os"

	"github.com/cortexlab/cortex/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
