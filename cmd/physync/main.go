// Command physync validates, simulates and tests physics scene files.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/physync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
