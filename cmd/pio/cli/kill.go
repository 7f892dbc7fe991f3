package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill <job>",
	Short: "Send a termination signal to a running job on this unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return killJob(args[0])
	},
}

func init() {
	rootCmd.AddCommand(killCmd)
}

// killJob locates the running job process by scanning for jobName in /proc
// cmdlines (the same mechanism job.New's duplicate-instance guard uses to
// detect a second instance) and sends it SIGTERM, which job.ListenForDisconnect
// turns into a graceful transition to Disconnected.
func killJob(jobName string) error {
	pid, err := findJobPID(jobName)
	if err != nil {
		return err
	}
	if err := signalTerminate(pid); err != nil {
		return fmt.Errorf("pio: signal pid %d: %w", pid, err)
	}
	fmt.Printf("pio: sent SIGTERM to %s (pid %d)\n", jobName, pid)
	return nil
}
