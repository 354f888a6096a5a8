package sshutils

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

var ErrNoAuthMethod = errors.New("no SSH authentication method configured")

// AuthConfig lists the credential sources for a connection. Any combination
// may be set; methods are offered to the server in key, agent, password order.
type AuthConfig struct {
	Password       string
	PrivateKeyPath string
	Passphrase     string
	UseAgent       bool
}

func (a AuthConfig) empty() bool {
	return a.Password == "" && a.PrivateKeyPath == "" && !a.UseAgent
}

var SSHKeyReader = os.ReadFile

func getPrivateKey(privateKeyMaterial []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(privateKeyMaterial, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(privateKeyMaterial)
}

// authMethods returns the configured auth methods and a cleanup func that
// releases the agent connection, if one was opened.
func (a AuthConfig) authMethods() ([]ssh.AuthMethod, func(), error) {
	l := logger.Get()
	var methods []ssh.AuthMethod
	cleanup := func() {}

	if a.PrivateKeyPath != "" {
		keyBytes, err := SSHKeyReader(a.PrivateKeyPath)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := getPrivateKey(keyBytes, a.Passphrase)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if a.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				l.Debugf("ssh-agent unavailable at %s: %v", sock, err)
			} else {
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
				cleanup = func() { _ = conn.Close() }
			}
		} else {
			l.Debug("SSH_AUTH_SOCK not set, skipping ssh-agent")
		}
	}

	if a.Password != "" {
		methods = append(methods, ssh.Password(a.Password))
	}

	if len(methods) == 0 {
		cleanup()
		return nil, func() {}, ErrNoAuthMethod
	}
	return methods, cleanup, nil
}

// GetHostKeyCallback verifies host keys against knownHostsPath, or accepts
// any key when insecure is set. A host with no entry is trusted on first use
// and recorded; a host whose recorded key differs is rejected.
func GetHostKeyCallback(knownHostsPath string, insecure bool) (ssh.HostKeyCallback, error) {
	if insecure {
		logger.Get().Warn("Host key verification disabled; any host key will be accepted")
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}
	if knownHostsPath == "" {
		return nil, fmt.Errorf("known_hosts path is required unless insecure_ignore_host_key is set")
	}
	if err := ensureKnownHostsFile(knownHostsPath); err != nil {
		return nil, err
	}
	cb, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return acceptNewHostKeys(knownHostsPath, cb), nil
}

func ensureKnownHostsFile(p string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return fmt.Errorf("known_hosts file not available: %w", err)
	}
	return f.Close()
}

// acceptNewHostKeys wraps known so that hosts it has never seen are
// appended to path instead of rejected.
func acceptNewHostKeys(path string, known ssh.HostKeyCallback) ssh.HostKeyCallback {
	var (
		mu    sync.Mutex
		added = map[string]ssh.PublicKey{}
	)
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := known(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		host := knownhosts.Normalize(hostname)
		if prev, ok := added[host]; ok {
			if bytes.Equal(prev.Marshal(), key.Marshal()) {
				return nil
			}
			return fmt.Errorf("host key for %s changed since it was added: %w", hostname, err)
		}

		f, openErr := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
		if openErr != nil {
			return fmt.Errorf("failed to record host key: %w", openErr)
		}
		_, writeErr := fmt.Fprintln(f, knownhosts.Line([]string{host}, key))
		if closeErr := f.Close(); writeErr == nil {
			writeErr = closeErr
		}
		if writeErr != nil {
			return fmt.Errorf("failed to record host key: %w", writeErr)
		}
		added[host] = key
		logger.Get().Warnf("Permanently added %s (%s %s) to %s",
			hostname, key.Type(), ssh.FingerprintSHA256(key), path)
		return nil
	}
}
