//go:build !windows

package cli

import (
	"os/exec"
	"syscall"
)

// detachProcess starts cmd in its own session so it survives this process
// exiting, the way the original CLI's `-b` flag detaches the child from its
// launching shell.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
