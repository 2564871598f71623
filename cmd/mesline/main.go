package main

import (
	"fmt"
	"os"

	"github.com/MiraeNK/mesline/internal/cli"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	cmd := cli.NewRootCommand()
	cmd.Version = Version
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
