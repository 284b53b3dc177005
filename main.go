package main

import (
	"os"

	"github.com/legamerdc/todostore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
