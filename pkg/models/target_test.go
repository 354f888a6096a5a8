package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bacalhau-project/vpsdeploy/internal/testutil"
	"github.com/bacalhau-project/vpsdeploy/pkg/sshutils"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
general:
  default_target: staging
targets:
  staging:
    host: 203.0.113.10
    port: 2222
    user: deploy
    password_env: STAGING_PASS
    known_hosts_path: ~/.ssh/known_hosts_staging
    command_timeout: 90s
    local_dist_dir: ~/site/dist
  production:
    host: 203.0.113.20
    insecure_ignore_host_key: true
    reload_on_invalid: false
    backend_files:
      - name: server.js
        required: true
`

func clearLegacyEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"VPS_HOST", "VPS_USER", "VPS_PASS", "STAGING_PASS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestReadTargetFromViper(t *testing.T) {
	clearLegacyEnv(t)
	v := testutil.GetTestViper(t, testConfig)
	home, err := homedir.Dir()
	require.NoError(t, err)

	t.Run("configured values override defaults", func(t *testing.T) {
		t.Setenv("STAGING_PASS", "s3cret")
		target, err := ReadTargetFromViper(v, "staging")
		require.NoError(t, err)

		assert.Equal(t, "staging", target.Name)
		assert.Equal(t, "203.0.113.10", target.Host)
		assert.Equal(t, 2222, target.Port)
		assert.Equal(t, "deploy", target.User)
		assert.Equal(t, "s3cret", target.Password)
		assert.Equal(t, 90*time.Second, target.CommandTimeout)
		assert.Equal(t, filepath.Join(home, ".ssh/known_hosts_staging"), target.KnownHostsPath)
		assert.Equal(t, filepath.Join(home, "site/dist"), target.LocalDistDir)

		assert.Equal(t, DefaultRemoteWebRoot, target.RemoteWebRoot)
		assert.Equal(t, DefaultRemoteAPIRoot, target.RemoteAPIRoot)
		assert.Equal(t, DefaultBackendFiles(), target.BackendFiles)
		assert.True(t, target.ReloadOnInvalid)
		require.NoError(t, target.Validate())
	})

	t.Run("configured backend file list replaces the default", func(t *testing.T) {
		target, err := ReadTargetFromViper(v, "production")
		require.NoError(t, err)
		assert.Equal(t, []FileSpec{{Name: "server.js", Required: true}}, target.BackendFiles)
		assert.True(t, target.InsecureIgnoreHostKey)
		assert.False(t, target.ReloadOnInvalid)
		assert.Equal(t, sshutils.DefaultSSHPort, target.Port)
		assert.Equal(t, DefaultUser, target.User)
	})

	t.Run("legacy environment overrides host and user", func(t *testing.T) {
		t.Setenv("VPS_HOST", "198.51.100.7")
		t.Setenv("VPS_USER", "admin")
		t.Setenv("VPS_PASS", "pw")
		target, err := ReadTargetFromViper(v, "production")
		require.NoError(t, err)
		assert.Equal(t, "198.51.100.7", target.Host)
		assert.Equal(t, "admin", target.User)
		assert.Equal(t, "pw", target.Password)
	})

	t.Run("default target can come from the environment alone", func(t *testing.T) {
		t.Setenv("VPS_HOST", "198.51.100.8")
		t.Setenv("VPS_PASS", "pw")
		target, err := ReadTargetFromViper(v, "")
		require.NoError(t, err)
		assert.Equal(t, DefaultTargetName, target.Name)
		assert.Equal(t, "198.51.100.8", target.Host)
		assert.Equal(t, DefaultNginxSitePath, target.NginxSitePath)
	})

	t.Run("prefixed environment overrides target keys", func(t *testing.T) {
		ev := testutil.GetTestViper(t, testConfig)
		ev.SetEnvPrefix("VPSDEPLOY")
		ev.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		ev.AutomaticEnv()
		t.Setenv("VPSDEPLOY_TARGETS_STAGING_HOST", "env.example")
		t.Setenv("VPSDEPLOY_TARGETS_STAGING_PORT", "2200")
		t.Setenv("VPSDEPLOY_TARGETS_STAGING_REMOTE_WEB_ROOT", "/srv/www")
		t.Setenv("VPSDEPLOY_TARGETS_QA_HOST", "qa.example")

		target, err := ReadTargetFromViper(ev, "staging")
		require.NoError(t, err)
		assert.Equal(t, "env.example", target.Host)
		assert.Equal(t, 2200, target.Port)
		assert.Equal(t, "/srv/www", target.RemoteWebRoot)
		assert.Equal(t, "deploy", target.User, "file values without an override are kept")
		assert.Equal(t, 90*time.Second, target.CommandTimeout)

		qa, err := ReadTargetFromViper(ev, "qa")
		require.NoError(t, err)
		assert.Equal(t, "qa.example", qa.Host)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := ReadTargetFromViper(v, "qa")
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})
}

func TestTargetNames(t *testing.T) {
	v := testutil.GetTestViper(t, testConfig)
	assert.Equal(t, []string{"production", "staging"}, TargetNames(v))
}

func TestTargetValidate(t *testing.T) {
	valid := func() *Target {
		target := NewTarget("staging")
		target.Host = "example.com"
		target.Password = "pw"
		return target
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name          string
		mutate        func(*Target)
		expectedError string
	}{
		{"missing host", func(t *Target) { t.Host = "" }, "host is required"},
		{"bad port", func(t *Target) { t.Port = 0 }, "invalid port number: 0"},
		{"missing user", func(t *Target) { t.User = "" }, "user is required"},
		{"no credentials", func(t *Target) { t.Password = "" }, "export VPS_PASS"},
		{"no known hosts", func(t *Target) { t.KnownHostsPath = "" }, "known_hosts_path is required"},
		{"relative web root", func(t *Target) { t.RemoteWebRoot = "www" }, "remote_web_root must be an absolute path"},
		{"missing process", func(t *Target) { t.ProcessName = "" }, "process_name is required"},
		{"absolute backend file", func(t *Target) { t.BackendFiles = []FileSpec{{Name: "/etc/passwd"}} }, "invalid backend file name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := valid()
			tt.mutate(target)
			err := target.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}

	t.Run("agent alone is a credential", func(t *testing.T) {
		target := valid()
		target.Password = ""
		target.UseAgent = true
		assert.NoError(t, target.Validate())
	})

	t.Run("insecure host key needs no known hosts file", func(t *testing.T) {
		target := valid()
		target.KnownHostsPath = ""
		target.InsecureIgnoreHostKey = true
		assert.NoError(t, target.Validate())
	})
}

func TestEcosystemPathAndAuth(t *testing.T) {
	target := NewTarget("default")
	assert.Equal(t, "/var/www/zued-api/ecosystem.config.js", target.EcosystemPath())
	target.EcosystemFile = "/opt/pm2/eco.js"
	assert.Equal(t, "/opt/pm2/eco.js", target.EcosystemPath())

	t.Setenv("KEY_PASS", "phrase")
	target.Password = "pw"
	target.PrivateKeyPath = "/keys/id"
	target.PrivateKeyPassphraseEnv = "KEY_PASS"
	auth := target.AuthConfig()
	assert.Equal(t, sshutils.AuthConfig{Password: "pw", PrivateKeyPath: "/keys/id", Passphrase: "phrase"}, auth)
}

func TestStepStatusCode(t *testing.T) {
	assert.Equal(t, StatusSucceeded, StepSucceeded.Code())
	assert.Equal(t, StatusFailed, StepFailed.Code())
	assert.Equal(t, StatusSkipped, StepSkipped.Code())
	assert.Equal(t, StatusUnknown, StepStatus("weird").Code())
	assert.True(t, StepSkipped.Done())
	assert.False(t, StepRunning.Done())
}
