//go:build !linux

package cli

import "fmt"

// findJobPID and signalTerminate are Linux-only (the Pioreactor fleet only
// targets Linux hosts, spec §1); other platforms refuse with a clear error
// rather than silently no-oping.
func findJobPID(jobName string) (int, error) {
	return 0, fmt.Errorf("pio: kill is only supported on linux")
}

func signalTerminate(pid int) error {
	return fmt.Errorf("pio: kill is only supported on linux")
}
