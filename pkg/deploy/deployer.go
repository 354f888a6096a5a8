package deploy

import (
	"context"
	"fmt"
	"io"

	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/bacalhau-project/vpsdeploy/pkg/sshutils"
)

const (
	WorkflowDeploy = "deploy"
	WorkflowPatch  = "patch-nginx"

	StepPreflight       = "preflight"
	StepUploadFrontend  = "upload-frontend"
	StepUploadBackend   = "upload-backend"
	StepInstallDeps     = "install-deps"
	StepPrepareUploads  = "prepare-uploads"
	StepRestartProcess  = "restart-process"
	StepSaveProcessList = "save-process-list"
	StepListProcesses   = "list-processes"
	StepHealthCheck     = "health-check"
)

// Options are the per-run settings shared by both workflows.
type Options struct {
	FromStep string
	Out      io.Writer
	Observer Observer
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return io.Discard
	}
	return o.Out
}

// Deployer uploads the frontend and backend to a target and restarts the
// backend process.
type Deployer struct {
	target  *models.Target
	connect Connector
	opts    Options
}

func NewDeployer(t *models.Target, connect Connector, opts Options) *Deployer {
	if connect == nil {
		connect = SSHConnector
	}
	return &Deployer{target: t, connect: connect, opts: opts}
}

// Steps returns the deploy workflow in execution order.
func (d *Deployer) Steps() []Step {
	t := d.target
	return []Step{
		{
			Name:        StepPreflight,
			Description: "Checking local build output",
			Local:       true,
			Run: func(context.Context, Remote) (string, error) {
				if err := Preflight(t); err != nil {
					return "", err
				}
				return fmt.Sprintf("dist: %s, api: %s", t.LocalDistDir, t.LocalAPIDir), nil
			},
		},
		{
			Name:        StepUploadFrontend,
			Description: "Uploading frontend",
			Run: func(ctx context.Context, r Remote) (string, error) {
				var stats UploadStats
				err := withSFTP(r, func(c sshutils.SFTPClienter) error {
					var err error
					stats, err = UploadDir(ctx, c, t.LocalDistDir, t.RemoteWebRoot)
					return err
				})
				return stats.String(), err
			},
		},
		{
			Name:        StepUploadBackend,
			Description: "Uploading API files",
			Run: func(ctx context.Context, r Remote) (string, error) {
				var stats UploadStats
				err := withSFTP(r, func(c sshutils.SFTPClienter) error {
					var err error
					stats, err = UploadFiles(ctx, c, t.LocalAPIDir, t.RemoteAPIRoot, t.BackendFiles)
					return err
				})
				return stats.String(), err
			},
		},
		commandStep(StepInstallDeps, "Installing dependencies", AbortOnFailure, InstallDepsCommand(t)),
		commandStep(StepPrepareUploads, "Preparing uploads directory", AbortOnFailure, PrepareUploadsCommand(t)),
		commandStep(StepRestartProcess, "Restarting "+t.ProcessName, AbortOnFailure, RestartProcessCommand(t)),
		commandStep(StepSaveProcessList, "Saving process list", ContinueOnFailure, SaveProcessListCommand),
		commandStep(StepListProcesses, "Listing processes", ContinueOnFailure, ListProcessesCommand),
		healthCheckStep(t, d.opts.out(), "Health check:"),
	}
}

// Deploy runs the workflow. Local preconditions are checked before any
// connection is attempted.
func (d *Deployer) Deploy(ctx context.Context) (*Report, error) {
	logger.FromContext(ctx).Infof("Deploying to %s (%s)", d.target.Name, d.target.Host)
	p := &Pipeline{
		Workflow: WorkflowDeploy,
		Target:   d.target,
		Steps:    d.Steps(),
		Connect:  d.connect,
		FromStep: d.opts.FromStep,
		Observer: d.opts.Observer,
	}
	return p.Run(ctx)
}

// Plan lists the transfers a deploy would perform without connecting.
func (d *Deployer) Plan(ctx context.Context) ([]Transfer, error) {
	if err := Preflight(d.target); err != nil {
		return nil, err
	}
	plan, _, err := PlanUpload(ctx, d.target.LocalDistDir, d.target.RemoteWebRoot)
	if err != nil {
		return nil, err
	}
	files, _, err := PlanFiles(d.target.LocalAPIDir, d.target.RemoteAPIRoot, d.target.BackendFiles)
	if err != nil {
		return nil, err
	}
	return append(plan, files...), nil
}

func commandStep(name, description string, policy Policy, command string) Step {
	return Step{
		Name:        name,
		Description: description,
		Policy:      policy,
		Run: func(ctx context.Context, r Remote) (string, error) {
			return runCommand(ctx, r, command)
		},
	}
}

// healthCheckStep always runs and prints the raw output, even on failure.
func healthCheckStep(t *models.Target, out io.Writer, label string) Step {
	command := HealthCheckCommand(t)
	return Step{
		Name:        StepHealthCheck,
		Description: "Verifying API health",
		Policy:      ContinueOnFailure,
		Always:      true,
		Run: func(ctx context.Context, r Remote) (string, error) {
			return runCommand(ctx, r, command)
		},
		After: func(res StepResult) {
			fmt.Fprintf(out, "%s %s\n", label, res.Output)
		},
	}
}
