package testutil

import (
	"io"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
)

type pipeConn struct {
	io.Reader
	io.WriteCloser
}

// NewInMemorySFTPClient returns a real SFTP client connected over in-process
// pipes to a server backed by an in-memory filesystem.
func NewInMemorySFTPClient(t testing.TB) *sftp.Client {
	t.Helper()

	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	server := sftp.NewRequestServer(
		pipeConn{Reader: serverReader, WriteCloser: serverWriter},
		sftp.InMemHandler(),
	)
	go func() {
		_ = server.Serve()
	}()

	client, err := sftp.NewClientPipe(clientReader, clientWriter)
	require.NoError(t, err)

	// The server side must go first: client.Close waits for its receive
	// loop, which only returns once clientReader sees EOF.
	t.Cleanup(func() {
		_ = server.Close()
		_ = serverWriter.Close()
		_ = clientReader.Close()
		_ = client.Close()
		_ = clientWriter.Close()
		_ = serverReader.Close()
	})
	return client
}
