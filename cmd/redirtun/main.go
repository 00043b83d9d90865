// Command redirtun is a thin demonstration binary over the redirtun
// library: the core exposes no CLI of its own (spec.md §6), so this wires
// Cobra subcommands directly to a tunnelmgr.Manager.
package main

import (
	"fmt"
	"os"

	"github.com/kbowden/redirtun/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
