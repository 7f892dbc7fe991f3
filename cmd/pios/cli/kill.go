package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pioreactor.com/dosing/internal/fleet"
)

var killCmd = &cobra.Command{
	Use:   "kill <job…>",
	Short: "Terminate one or more jobs on every unit in --units",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !yesFlag && !fleet.Confirm(os.Stdin, os.Stdout, fmt.Sprintf("Kill %v on %v?", args, requestedUnits())) {
			fmt.Println("pios: aborted")
			return nil
		}
		dispatcher, _, err := loadDispatcher()
		if err != nil {
			return err
		}
		if err := dispatcher.Kill(cmd.Context(), args, requestedUnits()); err != nil {
			return fmt.Errorf("pios: kill %v: %w", args, err)
		}
		fmt.Printf("pios: %v killed on %v\n", args, requestedUnits())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(killCmd)
}
