package deploy

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bacalhau-project/vpsdeploy/internal/testutil"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/bacalhau-project/vpsdeploy/pkg/sshutils"
	"github.com/stretchr/testify/require"
)

// countingSFTP records directory creations and file transfers. Close is a
// no-op so the in-memory server outlives each step.
type countingSFTP struct {
	sshutils.SFTPClienter
	mu      sync.Mutex
	mkdirs  []string
	creates []string
}

func (c *countingSFTP) Mkdir(p string) error {
	c.mu.Lock()
	c.mkdirs = append(c.mkdirs, p)
	c.mu.Unlock()
	return c.SFTPClienter.Mkdir(p)
}

func (c *countingSFTP) Create(p string) (io.WriteCloser, error) {
	c.mu.Lock()
	c.creates = append(c.creates, p)
	c.mu.Unlock()
	return c.SFTPClienter.Create(p)
}

func (c *countingSFTP) Close() error { return nil }

func (c *countingSFTP) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mkdirs = nil
	c.creates = nil
}

func newCountingSFTP(t *testing.T) *countingSFTP {
	t.Helper()
	return &countingSFTP{SFTPClienter: sshutils.NewSFTPClientWrapper(testutil.NewInMemorySFTPClient(t))}
}

type fakeResponse struct {
	stdout string
	exit   int
	err    error
}

type fakeRemote struct {
	sftp      *countingSFTP
	responses map[string]fakeResponse
	commands  []string
	closed    int
}

func newFakeRemote(t *testing.T) *fakeRemote {
	return &fakeRemote{sftp: newCountingSFTP(t), responses: map[string]fakeResponse{}}
}

func (f *fakeRemote) ExecuteCommand(_ context.Context, command string) (*sshutils.CommandResult, error) {
	f.commands = append(f.commands, command)
	resp := f.responses[command]
	if resp.err != nil {
		return &sshutils.CommandResult{Command: command, ExitStatus: -1}, resp.err
	}
	result := &sshutils.CommandResult{Command: command, Stdout: resp.stdout, ExitStatus: resp.exit}
	if resp.exit != 0 {
		return result, &sshutils.CommandError{Result: result}
	}
	return result, nil
}

func (f *fakeRemote) NewSFTPClient() (sshutils.SFTPClienter, error) {
	return f.sftp, nil
}

func (f *fakeRemote) Close() error {
	f.closed++
	return nil
}

type connectRecorder struct {
	remote Remote
	err    error
	calls  int
}

func (c *connectRecorder) connect(context.Context, *models.Target) (Remote, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.remote, nil
}

var errBoom = errors.New("boom")

// newTestTarget builds a target whose local inputs exist on disk and whose
// remote paths sit at the root of the in-memory filesystem.
func newTestTarget(t *testing.T) *models.Target {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"dist/index.html":          "<html></html>",
		"dist/assets/app.js":       "console.log('app')",
		"dist/assets/img/logo.svg": "<svg/>",
		"api/server.js":            "require('http')",
		"api/package.json":         `{"name":"api"}`,
		"api/.env":                 "PORT=3001",
	})

	target := models.NewTarget("test")
	target.Host = "example.com"
	target.Password = "pw"
	target.LocalDistDir = filepath.Join(root, "dist")
	target.LocalAPIDir = filepath.Join(root, "api")
	target.RemoteWebRoot = "/www"
	target.RemoteAPIRoot = "/srv"
	target.UploadsDir = "/www/uploads"
	target.NginxSitePath = "/site.conf"
	require.NoError(t, target.Validate())
	return target
}
