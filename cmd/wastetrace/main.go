package main

import (
	"os"

	"github.com/wastetrace/wastetrace/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
