package sshutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/bacalhau-project/vpsdeploy/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func newHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func TestAuthMethods(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	_, cleanupPub, privPath, cleanupPriv := testutil.CreateSSHPublicPrivateKeyPairOnDisk()
	defer cleanupPub()
	defer cleanupPriv()

	methods, cleanup, err := AuthConfig{PrivateKeyPath: privPath, Password: "pw"}.authMethods()
	require.NoError(t, err)
	defer cleanup()
	assert.Len(t, methods, 2)

	methods, _, err = AuthConfig{Password: "pw"}.authMethods()
	require.NoError(t, err)
	assert.Len(t, methods, 1)

	_, _, err = AuthConfig{UseAgent: true}.authMethods()
	assert.ErrorIs(t, err, ErrNoAuthMethod)

	_, _, err = AuthConfig{PrivateKeyPath: filepath.Join(t.TempDir(), "nope")}.authMethods()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read private key")

	garbage, cleanupGarbage, err := testutil.WriteStringToTempFile("not a key")
	require.NoError(t, err)
	defer cleanupGarbage()
	_, _, err = AuthConfig{PrivateKeyPath: garbage}.authMethods()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse private key")
}

func TestGetHostKeyCallback(t *testing.T) {
	remote := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 22}

	t.Run("insecure accepts any key", func(t *testing.T) {
		cb, err := GetHostKeyCallback("", true)
		require.NoError(t, err)
		assert.NoError(t, cb("127.0.0.1:22", remote, newHostKey(t)))
	})

	t.Run("path required when verifying", func(t *testing.T) {
		_, err := GetHostKeyCallback("", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "known_hosts path is required")
	})

	t.Run("missing file is created and the first key recorded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ssh", "known_hosts")
		key := newHostKey(t)

		cb, err := GetHostKeyCallback(path, false)
		require.NoError(t, err)
		require.NoError(t, cb("127.0.0.1:22", remote, key))
		assert.NoError(t, cb("127.0.0.1:22", remote, key), "same key again in this process")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, knownhosts.Line([]string{knownhosts.Normalize("127.0.0.1:22")}, key)+"\n", string(data))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		reloaded, err := GetHostKeyCallback(path, false)
		require.NoError(t, err)
		assert.NoError(t, reloaded("127.0.0.1:22", remote, key))
		err = reloaded("127.0.0.1:22", remote, newHostKey(t))
		var keyErr *knownhosts.KeyError
		require.True(t, errors.As(err, &keyErr))
		assert.NotEmpty(t, keyErr.Want)
	})

	t.Run("key changed after first use in the same process", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "known_hosts")
		cb, err := GetHostKeyCallback(path, false)
		require.NoError(t, err)
		require.NoError(t, cb("127.0.0.1:22", remote, newHostKey(t)))

		err = cb("127.0.0.1:22", remote, newHostKey(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "changed since it was added")
	})

	t.Run("known key accepted and mismatched key rejected", func(t *testing.T) {
		trusted := newHostKey(t)
		path := filepath.Join(t.TempDir(), "known_hosts")
		line := knownhosts.Line([]string{knownhosts.Normalize("127.0.0.1:22")}, trusted)
		require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o600))

		cb, err := GetHostKeyCallback(path, false)
		require.NoError(t, err)
		assert.NoError(t, cb("127.0.0.1:22", remote, trusted))

		err = cb("127.0.0.1:22", remote, newHostKey(t))
		require.Error(t, err)
		var keyErr *knownhosts.KeyError
		require.True(t, errors.As(err, &keyErr))
		assert.True(t, isPermanentDialError(err))
	})
}
