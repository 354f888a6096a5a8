package sshutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPClienter interface defines the methods we need for SFTP operations
type SFTPClienter interface {
	Mkdir(path string) error
	MkdirAll(path string) error
	Stat(path string) (os.FileInfo, error)
	Create(path string) (io.WriteCloser, error)
	Open(path string) (io.ReadCloser, error)
	Chmod(path string, mode os.FileMode) error
	Remove(path string) error
	Close() error
}

// SFTPClientCreator is a function type for creating SFTP clients
type SFTPClientCreator func(client *ssh.Client) (SFTPClienter, error)

var DefaultSFTPClientCreator SFTPClientCreator = func(client *ssh.Client) (SFTPClienter, error) {
	if client == nil {
		return nil, fmt.Errorf("SSH client is nil")
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		return nil, err
	}
	return NewSFTPClientWrapper(sc), nil
}

// SFTPClientWrapper adapts *sftp.Client to SFTPClienter.
type SFTPClientWrapper struct {
	Client *sftp.Client
}

func NewSFTPClientWrapper(client *sftp.Client) *SFTPClientWrapper {
	return &SFTPClientWrapper{Client: client}
}

func (w *SFTPClientWrapper) Mkdir(path string) error    { return w.Client.Mkdir(path) }
func (w *SFTPClientWrapper) MkdirAll(path string) error { return w.Client.MkdirAll(path) }
func (w *SFTPClientWrapper) Remove(path string) error   { return w.Client.Remove(path) }
func (w *SFTPClientWrapper) Close() error               { return w.Client.Close() }

func (w *SFTPClientWrapper) Stat(path string) (os.FileInfo, error) {
	return w.Client.Stat(path)
}

func (w *SFTPClientWrapper) Create(path string) (io.WriteCloser, error) {
	return w.Client.Create(path)
}

func (w *SFTPClientWrapper) Open(path string) (io.ReadCloser, error) {
	return w.Client.Open(path)
}

func (w *SFTPClientWrapper) Chmod(path string, mode os.FileMode) error {
	return w.Client.Chmod(path, mode)
}

var _ SFTPClienter = &SFTPClientWrapper{}

var ErrRemoteNotDirectory = errors.New("remote path exists and is not a directory")

// MkdirIfNotExists creates remotePath. An existing directory is not an error;
// any other failure, including an existing non-directory, is returned.
func MkdirIfNotExists(client SFTPClienter, remotePath string) (bool, error) {
	mkErr := client.Mkdir(remotePath)
	if mkErr == nil {
		return true, nil
	}
	info, statErr := client.Stat(remotePath)
	if statErr != nil {
		return false, fmt.Errorf("failed to create remote directory %s: %w", remotePath, mkErr)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%w: %s", ErrRemoteNotDirectory, remotePath)
	}
	return false, nil
}

// PutFile copies localPath to remotePath, truncating any existing file, and
// returns the number of bytes written.
func PutFile(ctx context.Context, client SFTPClienter, localPath, remotePath string) (int64, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open local file: %w", err)
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}

	n, copyErr := io.Copy(dst, &contextReader{ctx: ctx, r: src})
	closeErr := dst.Close()
	if copyErr != nil {
		return n, fmt.Errorf("failed to write remote file %s: %w", remotePath, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("failed to close remote file %s: %w", remotePath, closeErr)
	}
	return n, nil
}

// ReadFile returns the full content of remotePath.
func ReadFile(client SFTPClienter, remotePath string) ([]byte, error) {
	f, err := client.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
