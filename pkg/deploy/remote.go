package deploy

import (
	"context"
	"fmt"

	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/bacalhau-project/vpsdeploy/pkg/sshutils"
)

// Remote is an open session to a target host.
type Remote interface {
	ExecuteCommand(ctx context.Context, command string) (*sshutils.CommandResult, error)
	NewSFTPClient() (sshutils.SFTPClienter, error)
	Close() error
}

// Connector opens a Remote for a target.
type Connector func(ctx context.Context, t *models.Target) (Remote, error)

var _ Remote = &sshutils.SSHConfig{}

// SSHConnector connects to the target over SSH.
func SSHConnector(ctx context.Context, t *models.Target) (Remote, error) {
	cfg, err := sshutils.NewSSHConfigFunc(t.Host, t.Port, t.User, t.AuthConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH config: %w", err)
	}
	cfg.KnownHostsPath = t.KnownHostsPath
	cfg.InsecureIgnoreHostKey = t.InsecureIgnoreHostKey
	cfg.RetryAttempts = t.RetryAttempts
	cfg.CommandTimeout = t.CommandTimeout
	cfg.Logger = logger.FromContext(ctx)

	if _, err := cfg.Connect(ctx); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runCommand executes command and returns its stdout. A non-zero exit is
// an error.
func runCommand(ctx context.Context, r Remote, command string) (string, error) {
	result, err := r.ExecuteCommand(ctx, command)
	if result == nil {
		return "", err
	}
	return result.Stdout, err
}

// withSFTP opens a file transfer channel for the duration of fn.
func withSFTP(r Remote, fn func(sshutils.SFTPClienter) error) error {
	client, err := r.NewSFTPClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}
