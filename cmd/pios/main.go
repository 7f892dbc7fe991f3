// Command pios is the leader-side fleet CLI: it fans run/kill/update-settings/
// sync-configs operations out across the units in inventory (spec §6 "CLI
// surface (leader)").
package main

import (
	"fmt"
	"os"

	"pioreactor.com/dosing/cmd/pios/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
