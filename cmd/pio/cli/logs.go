package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var logsFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print (optionally follow) this unit's background job log",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tailLogs(cmd.OutOrStdout())
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep printing new lines as they are appended")
	rootCmd.AddCommand(logsCmd)
}

// tailLogs prints backgroundLogPath, polling for new content when -f is set
// — a plain poll loop rather than an fsnotify watch, since this command's
// only job is to let an operator glance at the tee target `-b` writes to.
func tailLogs(out io.Writer) error {
	f, err := os.Open(backgroundLogPath)
	if err != nil {
		return fmt.Errorf("pio: open %s: %w", backgroundLogPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(out, f); err != nil {
		return fmt.Errorf("pio: read %s: %w", backgroundLogPath, err)
	}
	if !logsFollow {
		return nil
	}

	for {
		time.Sleep(500 * time.Millisecond)
		if _, err := io.Copy(out, f); err != nil {
			return fmt.Errorf("pio: read %s: %w", backgroundLogPath, err)
		}
	}
}
