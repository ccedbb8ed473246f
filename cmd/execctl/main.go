package main

import (
	"os"

	"github.com/tradewell/execution/cmd/execctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
