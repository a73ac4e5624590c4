package main

import (
	"os"

	"github.com/givebridge/givebridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
