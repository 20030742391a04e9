package intar

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"intar.dev/intar/internal/sshkey"
)

// CommandResult is the outcome of one SSH exec.
type CommandResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// SSHChannel is the single-connection-per-VM SSH control channel.
// Commands on the same VM are serialized through mu, authenticating with
// a run-scoped ed25519 key.
type SSHChannel struct {
	addr string
	cfg  *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHChannel builds a channel that will dial addr (host:port) using
// key's client config once Dial is called.
func NewSSHChannel(addr string, key *sshkey.Pair, user string) *SSHChannel {
	return &SSHChannel{addr: addr, cfg: key.ClientConfig(user)}
}

// Dial connects, retrying until ctx is cancelled.
func (c *SSHChannel) Dial(ctx context.Context) error {
	cfg := *c.cfg
	cfg.Timeout = 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			return Wrap(BootFailure, "ssh dial cancelled", ctx.Err())
		default:
		}

		client, err := ssh.Dial("tcp", c.addr, &cfg)
		if err == nil {
			c.mu.Lock()
			c.client = client
			c.mu.Unlock()
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
}

// Exec runs command to completion (or until ctx is cancelled) and returns
// its exit code plus captured stdout/stderr.
func (c *SSHChannel) Exec(ctx context.Context, command string) (CommandResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return CommandResult{}, Wrap(TransportError, "ssh channel not connected", nil)
	}

	sess, err := c.client.NewSession()
	if err != nil {
		return CommandResult{}, Wrap(TransportError, "open ssh session", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case err := <-done:
		code := 0
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				code = exitErr.ExitStatus()
			} else {
				return CommandResult{}, Wrap(TransportError, fmt.Sprintf("run %q", command), err)
			}
		}
		return CommandResult{ExitCode: code, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		return CommandResult{}, Wrap(TransportError, "command timed out", ctx.Err())
	}
}

// WriteFile uploads content to a remote temp path via `cat >`.
func (c *SSHChannel) WriteFile(ctx context.Context, remotePath string, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return Wrap(TransportError, "ssh channel not connected", nil)
	}

	sess, err := c.client.NewSession()
	if err != nil {
		return Wrap(TransportError, "open ssh session", err)
	}
	defer sess.Close()

	sess.Stdin = bytes.NewReader(content)
	if err := sess.Run("cat >" + remotePath); err != nil {
		return Wrap(TransportError, fmt.Sprintf("write %s", remotePath), err)
	}
	return nil
}

// Close releases the underlying SSH connection, if any.
func (c *SSHChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
