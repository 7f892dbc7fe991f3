//go:build windows

package cli

import "os/exec"

// detachProcess is a no-op on Windows — the Pioreactor fleet only targets
// Linux hosts (spec §1); this build just runs the job as an ordinary child.
func detachProcess(cmd *exec.Cmd) {}
