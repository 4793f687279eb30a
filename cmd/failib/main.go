package main

import (
	"os"

	"github.com/failab-tohoku/failab-library/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
