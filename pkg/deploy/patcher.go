package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/bacalhau-project/vpsdeploy/pkg/nginx"
	"github.com/bacalhau-project/vpsdeploy/pkg/sshutils"
)

const (
	StepUploadPatchScript = "upload-patch-script"
	StepApplyPatch        = "apply-patch"
	StepValidateConfig    = "validate-config"
	StepReloadNginx       = "reload-nginx"
)

var (
	ErrConfigInvalid = errors.New("nginx configuration test did not pass")
	ErrReloadSkipped = errors.New("reload skipped because the configuration is invalid")
)

// Patcher adds the uploads location to the target's nginx site and
// reloads nginx.
type Patcher struct {
	target  *models.Target
	connect Connector
	opts    Options
	patch   *nginx.UploadsPatch
}

func NewPatcher(t *models.Target, connect Connector, opts Options) *Patcher {
	if connect == nil {
		connect = SSHConnector
	}
	return &Patcher{
		target:  t,
		connect: connect,
		opts:    opts,
		patch:   nginx.NewUploadsPatch(t.NginxSitePath, t.UploadsDir),
	}
}

// Steps returns the patch workflow in execution order.
func (p *Patcher) Steps() []Step {
	t := p.target
	// Unknown until validate-config runs; a skipped validation does not
	// block the reload.
	valid := true

	return []Step{
		{
			Name:        StepUploadPatchScript,
			Description: "Uploading nginx patch script",
			Run: func(ctx context.Context, r Remote) (string, error) {
				return p.uploadScript(ctx, r)
			},
		},
		{
			Name:        StepApplyPatch,
			Description: "Patching " + t.NginxSitePath,
			ResumeAt:    StepUploadPatchScript,
			Run: func(ctx context.Context, r Remote) (string, error) {
				// Removed after every attempt, so a retry must upload again.
				defer p.removeScript(ctx, r)
				return runCommand(ctx, r, RunPatchScriptCommand(RemotePatchScriptPath))
			},
		},
		{
			Name:        StepValidateConfig,
			Description: "Testing nginx configuration",
			Policy:      ContinueOnFailure,
			Run: func(ctx context.Context, r Remote) (string, error) {
				result, err := r.ExecuteCommand(ctx, NginxTestCommand)
				var cmdErr *sshutils.CommandError
				if err != nil && !errors.As(err, &cmdErr) {
					valid = false
					return "", err
				}
				valid = nginx.IsConfigValid(result.Stdout)
				if !valid {
					return result.Stdout, ErrConfigInvalid
				}
				return result.Stdout, nil
			},
		},
		{
			Name:        StepReloadNginx,
			Description: "Reloading nginx",
			Run: func(ctx context.Context, r Remote) (string, error) {
				l := logger.FromContext(ctx)
				if !valid {
					if !t.ReloadOnInvalid {
						return "", ErrReloadSkipped
					}
					l.Warn("Nginx test might have issues, reloading anyway")
				}
				out, err := runCommand(ctx, r, NginxReloadCommand)
				if err == nil {
					l.Info("Nginx reloaded")
				}
				return out, err
			},
		},
		healthCheckStep(t, p.opts.out(), "API Health:"),
	}
}

func (p *Patcher) Patch(ctx context.Context) (*Report, error) {
	logger.FromContext(ctx).Infof("Patching nginx on %s (%s)", p.target.Name, p.target.Host)
	pl := &Pipeline{
		Workflow: WorkflowPatch,
		Target:   p.target,
		Steps:    p.Steps(),
		Connect:  p.connect,
		FromStep: p.opts.FromStep,
		Observer: p.opts.Observer,
	}
	return pl.Run(ctx)
}

// DryRun reads the remote site config and reports what the patch would do
// without writing anything.
func (p *Patcher) DryRun(ctx context.Context) (string, bool, error) {
	r, err := p.connect(ctx, p.target)
	if err != nil {
		return "", false, err
	}
	defer r.Close()

	var current []byte
	err = withSFTP(r, func(c sshutils.SFTPClienter) error {
		var err error
		current, err = sshutils.ReadFile(c, p.target.NginxSitePath)
		return err
	})
	if err != nil {
		return "", false, err
	}

	cfg := string(current)
	out := p.opts.out()
	patched, changed := p.patch.Apply(cfg)
	switch {
	case changed:
		fmt.Fprintf(out, "Would insert before %q in %s:\n%s", p.patch.Anchor, p.target.NginxSitePath, p.patch.Block())
	case strings.Contains(cfg, p.patch.Marker):
		fmt.Fprintln(out, nginx.PresentMessage)
	default:
		fmt.Fprintln(out, nginx.MissingMessage)
	}
	return patched, changed, nil
}

// uploadScript renders the patch script to a local temp file and copies it
// to the remote host.
func (p *Patcher) uploadScript(ctx context.Context, r Remote) (string, error) {
	script, err := p.patch.Script()
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "_nginx_patch-*.py")
	if err != nil {
		return "", fmt.Errorf("failed to create local script: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.WriteString(tmp, script); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write local script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write local script: %w", err)
	}

	var n int64
	err = withSFTP(r, func(c sshutils.SFTPClienter) error {
		var err error
		n, err = sshutils.PutFile(ctx, c, tmp.Name(), RemotePatchScriptPath)
		return err
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d bytes to %s", n, RemotePatchScriptPath), nil
}

func (p *Patcher) removeScript(ctx context.Context, r Remote) {
	err := withSFTP(r, func(c sshutils.SFTPClienter) error {
		return c.Remove(RemotePatchScriptPath)
	})
	if err != nil {
		logger.FromContext(ctx).Warnf("Failed to remove %s: %v", RemotePatchScriptPath, err)
	}
}
