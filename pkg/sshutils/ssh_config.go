package sshutils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig holds the configuration for one remote session and, once
// connected, the live client.
type SSHConfig struct {
	Host                  string
	Port                  int
	User                  string
	Auth                  AuthConfig
	KnownHostsPath        string
	InsecureIgnoreHostKey bool
	DialTimeout           time.Duration
	CommandTimeout        time.Duration
	RetryAttempts         int

	Logger            *logger.Logger
	SSHDialer         SSHDialer
	SSHClient         SSHClienter
	SFTPClientCreator SFTPClientCreator
}

// NewSSHConfigFunc is the function used to create new SSH configurations
// This can be overridden for testing
var NewSSHConfigFunc = NewSSHConfig

// NewSSHConfig creates a new SSH configuration
func NewSSHConfig(host string, port int, user string, auth AuthConfig) (*SSHConfig, error) {
	l := logger.Get()
	l.Debugf("Creating new SSH config for %s@%s:%d", user, host, port)

	config := &SSHConfig{
		Host:              host,
		Port:              port,
		User:              user,
		Auth:              auth,
		DialTimeout:       SSHDialTimeout,
		RetryAttempts:     SSHRetryAttempts,
		Logger:            l,
		SSHDialer:         NewSSHDialerFunc(),
		SFTPClientCreator: DefaultSFTPClientCreator,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks connection prerequisites without touching the network.
func (c *SSHConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if c.Auth.empty() {
		return ErrNoAuthMethod
	}
	return nil
}

func (c *SSHConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Connect dials the host, retrying transient failures with exponential
// backoff. Authentication and host key failures are not retried.
func (c *SSHConfig) Connect(ctx context.Context) (SSHClienter, error) {
	l := c.Logger
	if l == nil {
		l = logger.Get()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	hostKeyCallback, err := GetHostKeyCallback(c.KnownHostsPath, c.InsecureIgnoreHostKey)
	if err != nil {
		return nil, err
	}
	methods, cleanup, err := c.Auth.authMethods()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	clientConfig := &ssh.ClientConfig{
		User:            c.User,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.DialTimeout,
	}

	attempts := c.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = TimeInBetweenSSHRetries
	b.MaxElapsedTime = SSHMaxRetryElapsed

	addr := c.Address()
	l.Infof("Connecting to SSH server: %s@%s", c.User, addr)

	attempt := 0
	var client SSHClienter
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		l.Debugf("Attempt %d/%d to connect via SSH", attempt, attempts)

		dialed, err := c.SSHDialer.Dial(ctx, "tcp", addr, clientConfig)
		if err != nil {
			if isPermanentDialError(err) {
				return backoff.Permanent(err)
			}
			l.Debugf("Failed to connect to %s: %v", addr, err)
			return err
		}
		client = dialed
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to connect to %s after %d attempt(s): %w", addr, attempt, err)
	}

	c.SSHClient = client
	l.Debugf("SSH connection established to %s", addr)
	return client, nil
}

func isPermanentDialError(err error) bool {
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "knownhosts:")
}

// Close closes the SSH connection
func (c *SSHConfig) Close() error {
	if c.SSHClient == nil {
		return nil
	}
	err := c.SSHClient.Close()
	c.SSHClient = nil
	return err
}

// NewSFTPClient opens a file-transfer channel on the connected client.
func (c *SSHConfig) NewSFTPClient() (SFTPClienter, error) {
	if c.SSHClient == nil {
		return nil, fmt.Errorf("SSH client not connected")
	}
	creator := c.SFTPClientCreator
	if creator == nil {
		creator = DefaultSFTPClientCreator
	}
	client, err := creator(c.SSHClient.GetClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}
	return client, nil
}
