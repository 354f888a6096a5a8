package sshutils

import (
	"io"

	"golang.org/x/crypto/ssh"
)

// SSHSessioner defines the interface for SSH session operations
type SSHSessioner interface {
	Run(cmd string) error
	SetStdout(w io.Writer)
	SetStderr(w io.Writer)
	Signal(sig ssh.Signal) error
	Close() error
}

// SSHSessionWrapper implements SSHSessioner interface
type SSHSessionWrapper struct {
	Session *ssh.Session
}

func (s *SSHSessionWrapper) Run(cmd string) error {
	return s.Session.Run(cmd)
}

func (s *SSHSessionWrapper) SetStdout(w io.Writer) {
	s.Session.Stdout = w
}

func (s *SSHSessionWrapper) SetStderr(w io.Writer) {
	s.Session.Stderr = w
}

func (s *SSHSessionWrapper) Signal(sig ssh.Signal) error {
	return s.Session.Signal(sig)
}

func (s *SSHSessionWrapper) Close() error {
	return s.Session.Close()
}

var (
	_ SSHClienter  = &SSHClientWrapper{}
	_ SSHSessioner = &SSHSessionWrapper{}
)
