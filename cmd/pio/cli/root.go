// Package cli implements the `pio` worker CLI commands using cobra, the way
// the teacher's cmd package lays out its root + subcommand files.
package cli

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "pio",
	Short: "Run, kill and inspect background jobs on this Pioreactor unit",
	Long: `pio is the worker-side command line interface for a single Pioreactor
unit. It launches dosing and other background jobs, sends them termination
signals, and tails their logs.`,
	Version: "0.1.0",
}

// Execute adds all child commands and runs the root command; called once
// from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/home/pi/.pioreactor/config.ini", "config file path")
}
