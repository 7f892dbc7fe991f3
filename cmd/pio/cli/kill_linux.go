//go:build linux

package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// findJobPID scans /proc for a process (other than this one) whose cmdline
// contains jobName, mirroring internal/job's duplicate-instance scan.
func findJobPID(jobName string) (int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, fmt.Errorf("pio: read /proc: %w", err)
	}

	self := os.Getpid()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == self {
			continue
		}
		cmdline, err := os.ReadFile(filepath.Join("/proc", e.Name(), "cmdline"))
		if err != nil {
			continue
		}
		if bytes.Contains(cmdline, []byte(jobName)) {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("pio: no running job matches %q", jobName)
}

func signalTerminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
