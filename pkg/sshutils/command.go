package sshutils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"golang.org/x/crypto/ssh"
)

// CommandResult is the captured outcome of one remote command.
type CommandResult struct {
	Command    string        `json:"command"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	ExitStatus int           `json:"exit_status"`
	Duration   time.Duration `json:"duration"`
}

func (r *CommandResult) Succeeded() bool {
	return r != nil && r.ExitStatus == 0
}

// CommandError reports a command that ran but did not exit cleanly.
type CommandError struct {
	Result *CommandResult
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", PreviewCommand(e.Result.Command), e.Result.ExitStatus)
	if e.Result.Stderr != "" {
		msg += ": " + Truncate(e.Result.Stderr, OutputPreviewLength)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// exitStatuser is satisfied by *ssh.ExitError.
type exitStatuser interface {
	ExitStatus() int
}

// ExecuteCommand runs command on the connected host, capturing stdout and
// stderr separately. A non-zero exit yields a *CommandError alongside the
// result. Cancelling ctx kills the remote process.
func (c *SSHConfig) ExecuteCommand(ctx context.Context, command string) (*CommandResult, error) {
	if c.SSHClient == nil {
		return nil, fmt.Errorf("SSH client not connected")
	}
	l := logger.FromContext(ctx)

	if c.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.CommandTimeout)
		defer cancel()
	}

	l.Infof("SSH: %s", PreviewCommand(command))

	session, err := c.SSHClient.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.SetStdout(&stdout)
	session.SetStderr(&stderr)

	result := &CommandResult{Command: command}
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		result.ExitStatus = -1
		result.Duration = time.Since(start)
		return result, fmt.Errorf("command %q interrupted: %w", PreviewCommand(command), ctx.Err())
	}

	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if result.Stdout != "" {
		l.Infof("OUT: %s", Truncate(result.Stdout, OutputPreviewLength))
	}
	if result.Stderr != "" {
		l.Infof("ERR: %s", Truncate(result.Stderr, OutputPreviewLength))
	}

	if runErr == nil {
		return result, nil
	}

	var exitErr exitStatuser
	if errors.As(runErr, &exitErr) {
		result.ExitStatus = exitErr.ExitStatus()
		return result, &CommandError{Result: result, Err: runErr}
	}
	var missing *ssh.ExitMissingError
	if errors.As(runErr, &missing) {
		result.ExitStatus = -1
		return result, &CommandError{Result: result, Err: runErr}
	}

	result.ExitStatus = -1
	return result, fmt.Errorf("failed to run %q: %w", PreviewCommand(command), runErr)
}

// PreviewCommand shortens long commands for display.
func PreviewCommand(command string) string {
	r := []rune(command)
	if len(r) > CommandPreviewLength {
		return string(r[:CommandPreviewLength]) + "..."
	}
	return command
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
