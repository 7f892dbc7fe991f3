package fleet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHRunner implements Runner over a real SSH connection per unit,
// grounded on golang.org/x/crypto/ssh — already part of the teacher's
// dependency graph (pulled in indirectly for its own transport stack) and
// promoted here to a direct import since fleet dispatch is this module's
// one genuine SSH consumer. Connections are opened per call rather than
// pooled: fleet operations are infrequent leader-initiated commands, not a
// hot path.
type SSHRunner struct {
	User       string
	Port       int
	Signer     ssh.Signer
	KnownHosts ssh.HostKeyCallback
	DialTimeout time.Duration
}

func (r *SSHRunner) dial(unit string) (*ssh.Client, error) {
	port := r.Port
	if port == 0 {
		port = 22
	}
	timeout := r.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	hostKeyCallback := r.KnownHosts
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	cfg := &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.Signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}
	addr := net.JoinHostPort(unit, fmt.Sprintf("%d", port))
	return ssh.Dial("tcp", addr, cfg)
}

// RunCommand opens one SSH session on unit and runs command, returning its
// combined stdout+stderr.
func (r *SSHRunner) RunCommand(ctx context.Context, unit, command string) (string, error) {
	client, err := r.dial(unit)
	if err != nil {
		return "", fmt.Errorf("fleet: dial %s: %w", unit, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("fleet: session on %s: %w", unit, err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		return out.String(), err
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return out.String(), ctx.Err()
	}
}

// PutFile streams local's contents to remotePath on unit via `cat >
// remotePath`, avoiding a pkg/sftp dependency for what is otherwise a
// one-shot config-file copy.
func (r *SSHRunner) PutFile(ctx context.Context, unit, local, remotePath string) error {
	client, err := r.dial(unit)
	if err != nil {
		return fmt.Errorf("fleet: dial %s: %w", unit, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("fleet: session on %s: %w", unit, err)
	}
	defer session.Close()

	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("fleet: open %s: %w", local, err)
	}
	defer f.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("fleet: stdin pipe to %s: %w", unit, err)
	}

	if err := session.Start(fmt.Sprintf("cat > %q", remotePath)); err != nil {
		return fmt.Errorf("fleet: start remote cat on %s: %w", unit, err)
	}

	if _, err := io.Copy(stdin, f); err != nil {
		stdin.Close()
		return fmt.Errorf("fleet: copy %s to %s: %w", local, unit, err)
	}
	stdin.Close()

	return session.Wait()
}
