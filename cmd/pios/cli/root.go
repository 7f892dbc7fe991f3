// Package cli implements the `pios` leader CLI commands using cobra, laid
// out the same way cmd/pio/cli is: one file per subcommand, package-level
// persistent flags, init()-based registration.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	configFile string
	unitsFlag  []string
	yesFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "pios",
	Short: "Dispatch fleet-wide operations from the leader node",
	Long: `pios is the leader-side command line interface. It fans run, kill,
update-settings and sync-configs operations out to every unit in the fleet
inventory over SSH and the pub/sub bus.`,
	Version: "0.1.0",
}

// Execute adds all child commands and runs the root command; called once
// from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/home/pi/.pioreactor/config.ini", "global config file path")
	rootCmd.PersistentFlags().StringSliceVar(&unitsFlag, "units", []string{fleetBroadcast}, "comma-separated unit list, or $broadcast for every active unit")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "y", "y", false, "skip the confirmation prompt (answers as if \"Y\" were typed)")
}
