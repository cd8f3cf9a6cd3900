// Command gravindex indexes decoded chain events into entity state.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/gravindex/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
