package main

import (
	"fmt"
	"os"

	"github.com/zephh/chronobind/internal/cli"
	"github.com/zephh/chronobind/internal/tui"
)

// version is stamped by the release build: -ldflags "-X main.version=x.y.z"
var version = "dev"

func main() {
	// Bare invocation opens the interactive browser; an explicit "ui" or
	// "tui" argument does the same. Everything else goes to the CLI.
	if len(os.Args) < 2 || os.Args[1] == "ui" || os.Args[1] == "tui" {
		if err := tui.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "chronobind: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cli.New(version).Run()
}
