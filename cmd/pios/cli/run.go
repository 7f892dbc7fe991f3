package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pioreactor.com/dosing/internal/fleet"
)

var runFlags []string

var runCmd = &cobra.Command{
	Use:   "run <job> [flags…]",
	Short: "Launch <job> on every unit in --units",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !yesFlag && !fleet.Confirm(os.Stdin, os.Stdout, fmt.Sprintf("Run %s on %v?", args[0], requestedUnits())) {
			fmt.Println("pios: aborted")
			return nil
		}
		dispatcher, _, err := loadDispatcher()
		if err != nil {
			return err
		}
		if err := dispatcher.Run(cmd.Context(), args[0], runFlags, requestedUnits()); err != nil {
			return fmt.Errorf("pios: run %s: %w", args[0], err)
		}
		fmt.Printf("pios: %s launched on %v\n", args[0], requestedUnits())
		return nil
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runFlags, "flag", nil, "flag passed through to `pio run`, repeatable (e.g. --flag --mode=turbidostat)")
	rootCmd.AddCommand(runCmd)
}
