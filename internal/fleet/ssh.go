package fleet

import "context"

// Runner is the narrow interface over the out-of-scope SSH fan-out
// collaborator (spec §1: remote execution on worker units is "referenced
// only through their contract"). The original shells out to `ssh`/paramiko
// per unit (pios.py); production wiring implements Runner over a real SSH
// client, tests substitute a recorder.
type Runner interface {
	// RunCommand executes command on unit over SSH and returns combined
	// output.
	RunCommand(ctx context.Context, unit, command string) (output string, err error)
	// PutFile copies local to remotePath on unit (used by sync-configs).
	PutFile(ctx context.Context, unit, local, remotePath string) error
}
