package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/bacalhau-project/vpsdeploy/pkg/deploy"
	"github.com/bacalhau-project/vpsdeploy/pkg/display"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/spf13/cobra"
)

func getDeployCmd() *cobra.Command {
	var (
		flags   workflowFlags
		distDir string
		apiDir  string
	)

	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Upload the frontend and API and restart the API process",
		Long: `deploy uploads the local dist directory to the web root, uploads the
API entry files, installs production dependencies, prepares the uploads
directory, restarts the API under pm2 and probes its health endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := resolveTarget(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dist-dir") {
				t.LocalDistDir = distDir
			}
			if cmd.Flags().Changed("api-dir") {
				t.LocalAPIDir = apiDir
			}
			if err := t.ExpandPaths(); err != nil {
				return err
			}
			return runDeploy(cmd, t, &flags)
		},
	}

	deployCmd.Flags().StringVar(&distDir, "dist-dir", models.DefaultLocalDistDir, "Local frontend build directory")
	deployCmd.Flags().StringVar(&apiDir, "api-dir", models.DefaultLocalAPIDir, "Local API directory")
	addWorkflowFlags(deployCmd, &flags, deploy.NewDeployer(models.NewTarget(""), nil, deploy.Options{}).Steps())
	return deployCmd
}

func runDeploy(cmd *cobra.Command, t *models.Target, flags *workflowFlags) error {
	out := cmd.OutOrStdout()

	if flags.dryRun {
		plan, err := deploy.NewDeployer(t, connectFunc, deploy.Options{}).Plan(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deploy plan for %s (%s):\n", t.Name, t.Host)
		for _, tr := range plan {
			local := tr.Local
			if tr.Dir {
				local += string(filepath.Separator)
			}
			fmt.Fprintf(out, "  %s -> %s\n", local, tr.Remote)
		}
		return nil
	}

	if err := t.Validate(); err != nil {
		return err
	}
	from, err := flags.startStep(t, deploy.WorkflowDeploy)
	if err != nil {
		return err
	}

	d := deploy.NewDeployer(t, connectFunc, deploy.Options{
		FromStep: from,
		Out:      out,
		Observer: display.NewStepDisplay(out),
	})
	report, err := d.Deploy(cmd.Context())
	flags.finishRun(cmd, report)
	return err
}
