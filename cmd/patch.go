package cmd

import (
	"github.com/bacalhau-project/vpsdeploy/pkg/deploy"
	"github.com/bacalhau-project/vpsdeploy/pkg/display"
	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/spf13/cobra"
)

func getPatchNginxCmd() *cobra.Command {
	var (
		flags  workflowFlags
		site   string
		strict bool
	)

	patchCmd := &cobra.Command{
		Use:   "patch-nginx",
		Short: "Add the /uploads/ location to the nginx site config",
		Long: `patch-nginx inserts a location block serving the uploads directory
ahead of the API location in the nginx site config, tests the
configuration and reloads nginx. Running it again changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := resolveTarget(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("site") {
				t.NginxSitePath = site
			}
			if strict {
				t.ReloadOnInvalid = false
			}
			if err := t.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.dryRun {
				_, changed, err := deploy.NewPatcher(t, connectFunc, deploy.Options{Out: out}).DryRun(cmd.Context())
				if err == nil && !changed {
					logger.Get().Debugf("No change needed for %s", t.NginxSitePath)
				}
				return err
			}

			from, err := flags.startStep(t, deploy.WorkflowPatch)
			if err != nil {
				return err
			}
			p := deploy.NewPatcher(t, connectFunc, deploy.Options{
				FromStep: from,
				Out:      out,
				Observer: display.NewStepDisplay(out),
			})
			report, err := p.Patch(cmd.Context())
			flags.finishRun(cmd, report)
			return err
		},
	}

	patchCmd.Flags().StringVar(&site, "site", models.DefaultNginxSitePath, "Remote nginx site config path")
	patchCmd.Flags().BoolVar(&strict, "strict-validate", false, "Do not reload nginx when the configuration test fails")
	addWorkflowFlags(patchCmd, &flags, deploy.NewPatcher(models.NewTarget(""), nil, deploy.Options{}).Steps())
	return patchCmd
}
