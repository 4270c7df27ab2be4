package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// CommandResult is the outcome of one remote command execution.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Dialer opens short-lived SSH connections. Each call dials, runs, and
// closes; callers that need fan-out run many Dialer calls concurrently.
type Dialer struct{}

// NewDialer returns a Dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

// CanConnect reports whether an SSH session can be established and
// authenticated with the given credentials within the timeout. It never
// returns an error: any dial, auth, or timeout failure yields false.
func (d *Dialer) CanConnect(address string, port int, user, password string, timeout time.Duration) bool {
	cfg := &Config{
		Host:              address,
		Port:              port,
		User:              user,
		AuthMethod:        AuthMethodPassword,
		Password:          password,
		ConnectionTimeout: timeout,
	}

	clientConfig, err := cfg.BuildSSHClientConfig()
	if err != nil {
		return false
	}

	client, err := ssh.Dial("tcp", cfg.Address(), clientConfig)
	if err != nil {
		return false
	}
	_ = client.Close()
	return true
}

// Run executes a command on the target described by cfg. A non-zero remote
// exit code is not an error; connection and auth failures are.
func (d *Dialer) Run(ctx context.Context, cfg *Config, command string) (*CommandResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clientConfig, err := cfg.BuildSSHClientConfig()
	if err != nil {
		return nil, err
	}

	address := cfg.Address()
	log.Debug().Str("address", address).Str("command", command).Msg("executing remote command")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	var client *ssh.Client
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errChan:
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	case client = <-connChan:
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(command)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		runErr = ctx.Err()
	case runErr = <-doneChan:
	}

	result := &CommandResult{
		Stdout: strings.TrimRight(stdoutBuf.String(), "\n"),
		Stderr: strings.TrimRight(stderrBuf.String(), "\n"),
	}

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			// Command ran but returned non-zero.
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("command execution failed on %s: %w", address, runErr)
	}

	return result, nil
}
