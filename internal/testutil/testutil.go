package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// CreateSSHPublicPrivateKeyPairOnDisk writes a fresh ed25519 key pair and
// returns the public key path, its cleanup, the private key path, and its
// cleanup.
func CreateSSHPublicPrivateKeyPairOnDisk() (string, func(), string, func()) {
	publicKey, privateKey, err := GenerateSSHKeyMaterial()
	if err != nil {
		panic(err)
	}
	testSSHPublicKeyPath, cleanupPublicKey, err := WriteStringToTempFile(publicKey)
	if err != nil {
		panic(err)
	}
	testSSHPrivateKeyPath, cleanupPrivateKey, err := WriteStringToTempFile(privateKey)
	if err != nil {
		panic(err)
	}

	return testSSHPublicKeyPath, cleanupPublicKey, testSSHPrivateKeyPath, cleanupPrivateKey
}

// GenerateSSHKeyMaterial returns an authorized_keys line and an OpenSSH PEM
// private key.
func GenerateSSHKeyMaterial() (string, string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	block, err := ssh.MarshalPrivateKey(priv, "vpsdeploy-test")
	if err != nil {
		return "", "", err
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", "", err
	}
	return string(ssh.MarshalAuthorizedKey(sshPub)), string(pem.EncodeToMemory(block)), nil
}

func WriteStringToTempFile(content string) (string, func(), error) {
	tempFile, err := os.CreateTemp("", "temp-*")
	if err != nil {
		return "", nil, err
	}

	if _, err := tempFile.WriteString(content); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return "", nil, err
	}

	tempFile.Close()

	cleanup := func() {
		os.Remove(tempFile.Name())
	}

	return tempFile.Name(), cleanup, nil
}

// WriteTree creates files under root. Keys are slash-separated relative
// paths; a key ending in "/" creates an empty directory.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			require.NoError(t, os.MkdirAll(p, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// GetTestViper returns a fresh viper instance loaded from YAML content.
func GetTestViper(t testing.TB, content string) *viper.Viper {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v
}
