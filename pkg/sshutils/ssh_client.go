package sshutils

import (
	"fmt"

	"golang.org/x/crypto/ssh"
)

// SSHClienter interface defines the methods we need for SSH operations
type SSHClienter interface {
	NewSession() (SSHSessioner, error)
	Close() error
	GetClient() *ssh.Client
}

type SSHClientWrapper struct {
	Client *ssh.Client
}

func (w *SSHClientWrapper) NewSession() (SSHSessioner, error) {
	if w.Client == nil {
		return nil, fmt.Errorf("SSH client not connected")
	}
	session, err := w.Client.NewSession()
	if err != nil {
		return nil, err
	}
	return &SSHSessionWrapper{Session: session}, nil
}

func (w *SSHClientWrapper) Close() error {
	if w.Client == nil {
		return nil
	}
	return w.Client.Close()
}

func (w *SSHClientWrapper) GetClient() *ssh.Client {
	return w.Client
}
