// Command notekeeper is a client for a note-based ledger.
package main

import (
	"os"

	"github.com/roach88/notekeeper/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
