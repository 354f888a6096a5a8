package deploy

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/bacalhau-project/vpsdeploy/pkg/nginx"
	"github.com/bacalhau-project/vpsdeploy/pkg/sshutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const (
	nginxOK     = "nginx: the configuration file /etc/nginx/nginx.conf syntax is ok\nnginx: configuration file /etc/nginx/nginx.conf test is successful\n"
	nginxBroken = "nginx: [emerg] unexpected end of file\nnginx: configuration file /etc/nginx/nginx.conf test failed\n"
	healthCmd   = "curl -s http://127.0.0.1:3001/api/health"
	patchCmd    = "python3 /tmp/_nginx_patch.py"
	siteWithAPI = "server {\n    location / {\n    }\n\n    location /api/ {\n        proxy_pass http://127.0.0.1:3001;\n    }\n}\n"
)

func newPatchRemote(t *testing.T) *fakeRemote {
	t.Helper()
	remote := newFakeRemote(t)
	_, err := sshutils.MkdirIfNotExists(remote.sftp, "/tmp")
	require.NoError(t, err)
	remote.sftp.reset()
	remote.responses[patchCmd] = fakeResponse{stdout: nginx.UpdatedMessage + "\n"}
	remote.responses[NginxTestCommand] = fakeResponse{stdout: nginxOK}
	remote.responses[healthCmd] = fakeResponse{stdout: healthJSON}
	return remote
}

func writeRemote(t *testing.T, c sshutils.SFTPClienter, p, content string) {
	t.Helper()
	w, err := c.Create(p)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestPatchSuccess(t *testing.T) {
	logger.NewTestLogger(t)
	target := newTestTarget(t)
	remote := newPatchRemote(t)
	var out bytes.Buffer

	report, err := NewPatcher(target, (&connectRecorder{remote: remote}).connect, Options{Out: &out}).
		Patch(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Succeeded)
	assert.Equal(t, WorkflowPatch, report.Workflow)

	assert.Equal(t, []string{patchCmd, NginxTestCommand, NginxReloadCommand, healthCmd}, remote.commands)
	assert.Equal(t, []string{RemotePatchScriptPath}, remote.sftp.creates)
	assert.Equal(t, "API Health: "+healthJSON+"\n", out.String())

	_, err = remote.sftp.Stat(RemotePatchScriptPath)
	assert.Error(t, err, "script is removed after running")
}

func TestPatchUploadsRenderedScript(t *testing.T) {
	logger.NewTestLogger(t)
	target := newTestTarget(t)
	remote := newPatchRemote(t)
	p := NewPatcher(target, nil, Options{})

	out, err := p.uploadScript(context.Background(), remote)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "to "+RemotePatchScriptPath))

	got, err := sshutils.ReadFile(remote.sftp, RemotePatchScriptPath)
	require.NoError(t, err)
	want, err := nginx.NewUploadsPatch(target.NginxSitePath, target.UploadsDir).Script()
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}

func TestPatchReloadsWhenValidationFails(t *testing.T) {
	tl := logger.NewTestLogger(t)
	target := newTestTarget(t)
	remote := newPatchRemote(t)
	remote.responses[NginxTestCommand] = fakeResponse{stdout: nginxBroken, exit: 1}

	report, err := NewPatcher(target, (&connectRecorder{remote: remote}).connect, Options{}).
		Patch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigInvalid)

	assert.Equal(t, []string{patchCmd, NginxTestCommand, NginxReloadCommand, healthCmd}, remote.commands)
	assert.Equal(t, models.StepFailed, report.Step(StepValidateConfig).Status)
	assert.Equal(t, nginxBroken, report.Step(StepValidateConfig).Output)
	assert.Equal(t, models.StepSucceeded, report.Step(StepReloadNginx).Status)
	assert.Contains(t, tl.FilterLevel(zapcore.WarnLevel), "Nginx test might have issues, reloading anyway")
}

func TestPatchStrictValidationSkipsReload(t *testing.T) {
	logger.NewTestLogger(t)
	target := newTestTarget(t)
	target.ReloadOnInvalid = false
	remote := newPatchRemote(t)
	remote.responses[NginxTestCommand] = fakeResponse{stdout: nginxBroken, exit: 1}
	var out bytes.Buffer

	report, err := NewPatcher(target, (&connectRecorder{remote: remote}).connect, Options{Out: &out}).
		Patch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReloadSkipped)

	assert.Equal(t, []string{patchCmd, NginxTestCommand, healthCmd}, remote.commands)
	assert.Equal(t, models.StepFailed, report.Step(StepReloadNginx).Status)
	assert.Equal(t, models.StepSucceeded, report.Step(StepHealthCheck).Status)
	assert.Equal(t, "API Health: "+healthJSON+"\n", out.String())
}

func TestPatchScriptFailureAbortsButRemovesScript(t *testing.T) {
	logger.NewTestLogger(t)
	target := newTestTarget(t)
	remote := newPatchRemote(t)
	remote.responses[patchCmd] = fakeResponse{stdout: nginx.MissingMessage + "\n", exit: 1}

	report, err := NewPatcher(target, (&connectRecorder{remote: remote}).connect, Options{}).
		Patch(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{patchCmd, healthCmd}, remote.commands)
	assert.Equal(t, models.StepSkipped, report.Step(StepValidateConfig).Status)
	assert.Equal(t, models.StepSkipped, report.Step(StepReloadNginx).Status)
	_, err = remote.sftp.Stat(RemotePatchScriptPath)
	assert.Error(t, err)
}

func TestPatchResumeAfterApplyFailureUploadsScriptAgain(t *testing.T) {
	logger.NewTestLogger(t)
	target := newTestTarget(t)
	remote := newPatchRemote(t)
	remote.responses[patchCmd] = fakeResponse{stdout: "Traceback", exit: 1}

	report, err := NewPatcher(target, (&connectRecorder{remote: remote}).connect, Options{}).
		Patch(context.Background())
	require.Error(t, err)
	require.Equal(t, StepApplyPatch, report.FirstFailed())
	_, err = remote.sftp.Stat(RemotePatchScriptPath)
	require.Error(t, err)

	remote.responses[patchCmd] = fakeResponse{stdout: nginx.UpdatedMessage + "\n"}
	remote.commands = nil
	remote.sftp.reset()

	report, err = NewPatcher(target, (&connectRecorder{remote: remote}).connect,
		Options{FromStep: report.FirstFailed()}).Patch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StepSucceeded, report.Step(StepUploadPatchScript).Status)
	assert.Equal(t, []string{RemotePatchScriptPath}, remote.sftp.creates)
	assert.Equal(t, []string{patchCmd, NginxTestCommand, NginxReloadCommand, healthCmd}, remote.commands)
}

func TestPatchValidationTransportError(t *testing.T) {
	logger.NewTestLogger(t)
	target := newTestTarget(t)
	target.ReloadOnInvalid = false
	remote := newPatchRemote(t)
	remote.responses[NginxTestCommand] = fakeResponse{err: errors.New("session closed")}

	report, err := NewPatcher(target, (&connectRecorder{remote: remote}).connect, Options{}).
		Patch(context.Background())
	require.Error(t, err)
	assert.Contains(t, report.Step(StepValidateConfig).Error, "session closed")
	assert.Equal(t, models.StepFailed, report.Step(StepReloadNginx).Status)
}

func TestPatchDryRun(t *testing.T) {
	logger.NewTestLogger(t)
	target := newTestTarget(t)

	t.Run("would insert", func(t *testing.T) {
		remote := newPatchRemote(t)
		writeRemote(t, remote.sftp, target.NginxSitePath, siteWithAPI)
		var out bytes.Buffer

		patched, changed, err := NewPatcher(target, (&connectRecorder{remote: remote}).connect, Options{Out: &out}).
			DryRun(context.Background())
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Contains(t, patched, "location /uploads/ {")
		assert.Contains(t, out.String(), "Would insert before")
		assert.Empty(t, remote.commands)
		assert.Equal(t, 1, remote.closed)

		current, err := sshutils.ReadFile(remote.sftp, target.NginxSitePath)
		require.NoError(t, err)
		assert.Equal(t, siteWithAPI, string(current), "dry run never writes")
	})

	t.Run("already configured", func(t *testing.T) {
		remote := newPatchRemote(t)
		patched, _ := nginx.NewUploadsPatch(target.NginxSitePath, target.UploadsDir).Apply(siteWithAPI)
		writeRemote(t, remote.sftp, target.NginxSitePath, patched)
		var out bytes.Buffer

		_, changed, err := NewPatcher(target, (&connectRecorder{remote: remote}).connect, Options{Out: &out}).
			DryRun(context.Background())
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, nginx.PresentMessage+"\n", out.String())
	})

	t.Run("no anchor", func(t *testing.T) {
		remote := newPatchRemote(t)
		writeRemote(t, remote.sftp, target.NginxSitePath, "server {}\n")
		var out bytes.Buffer

		_, changed, err := NewPatcher(target, (&connectRecorder{remote: remote}).connect, Options{Out: &out}).
			DryRun(context.Background())
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, nginx.MissingMessage+"\n", out.String())
	})

	t.Run("missing site file", func(t *testing.T) {
		remote := newPatchRemote(t)
		_, _, err := NewPatcher(target, (&connectRecorder{remote: remote}).connect, Options{}).
			DryRun(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open remote file")
	})
}
