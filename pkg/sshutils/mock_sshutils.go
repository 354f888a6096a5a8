package sshutils

import (
	"context"
	"io"
	"os"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/ssh"
)

// MockSSHDialer is a mock implementation of SSHDialer
type MockSSHDialer struct {
	mock.Mock
}

func NewMockSSHDialer() *MockSSHDialer {
	return &MockSSHDialer{}
}

func (m *MockSSHDialer) Dial(
	ctx context.Context,
	network, addr string,
	config *ssh.ClientConfig,
) (SSHClienter, error) {
	args := m.Called(ctx, network, addr, config)
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(SSHClienter), nil
}

type MockSSHClient struct {
	mock.Mock
}

func (m *MockSSHClient) NewSession() (SSHSessioner, error) {
	args := m.Called()
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(SSHSessioner), nil
}

func (m *MockSSHClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSSHClient) GetClient() *ssh.Client {
	return nil
}

// MockSSHSession writes the stdout and stderr strings returned from the Run
// expectation into the writers set on the session:
//
//	session.On("Run", "pm2 save 2>&1").Return("saved", "", nil)
type MockSSHSession struct {
	mock.Mock
	stdout io.Writer
	stderr io.Writer
}

func NewMockSSHSession() *MockSSHSession {
	return &MockSSHSession{}
}

func (m *MockSSHSession) Run(cmd string) error {
	args := m.Called(cmd)
	if m.stdout != nil {
		_, _ = io.WriteString(m.stdout, args.String(0))
	}
	if m.stderr != nil {
		_, _ = io.WriteString(m.stderr, args.String(1))
	}
	return args.Error(2)
}

func (m *MockSSHSession) SetStdout(w io.Writer) { m.stdout = w }
func (m *MockSSHSession) SetStderr(w io.Writer) { m.stderr = w }

func (m *MockSSHSession) Signal(sig ssh.Signal) error {
	args := m.Called(sig)
	return args.Error(0)
}

func (m *MockSSHSession) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockSFTPClient struct {
	mock.Mock
}

func (m *MockSFTPClient) Mkdir(path string) error {
	return m.Called(path).Error(0)
}

func (m *MockSFTPClient) MkdirAll(path string) error {
	return m.Called(path).Error(0)
}

func (m *MockSFTPClient) Stat(path string) (os.FileInfo, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(os.FileInfo), args.Error(1)
}

func (m *MockSFTPClient) Create(path string) (io.WriteCloser, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSFTPClient) Open(path string) (io.ReadCloser, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockSFTPClient) Chmod(path string, mode os.FileMode) error {
	return m.Called(path, mode).Error(0)
}

func (m *MockSFTPClient) Remove(path string) error {
	return m.Called(path).Error(0)
}

func (m *MockSFTPClient) Close() error {
	return m.Called().Error(0)
}

var (
	_ SSHDialer    = &MockSSHDialer{}
	_ SSHClienter  = &MockSSHClient{}
	_ SSHSessioner = &MockSSHSession{}
	_ SFTPClienter = &MockSFTPClient{}
)
