// Command pio is the per-unit worker CLI: it runs, kills and tails the logs
// of background jobs on this host (spec §6 "CLI surface (worker)").
package main

import (
	"fmt"
	"os"

	"pioreactor.com/dosing/cmd/pio/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
