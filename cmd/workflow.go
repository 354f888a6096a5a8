package cmd

import (
	"fmt"

	"github.com/bacalhau-project/vpsdeploy/pkg/deploy"
	"github.com/bacalhau-project/vpsdeploy/pkg/display"
	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/spf13/cobra"
)

// workflowFlags are shared by deploy and patch-nginx.
type workflowFlags struct {
	fromStep string
	resume   bool
	dryRun   bool
	noReport bool
}

func addWorkflowFlags(cmd *cobra.Command, f *workflowFlags, steps []deploy.Step) {
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Name)
	}
	cmd.Flags().StringVar(&f.fromStep, "from-step", "", "Skip remote steps before this one")
	cmd.Flags().BoolVar(&f.resume, "resume", false, "Start from the first failed step of the last run")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Show what would change without changing anything")
	cmd.Flags().BoolVar(&f.noReport, "no-report", false, "Do not write a run report")
	cmd.MarkFlagsMutuallyExclusive("from-step", "resume")
	_ = cmd.RegisterFlagCompletionFunc("from-step",
		func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return names, cobra.ShellCompDirectiveNoFileComp
		})
}

// startStep resolves --from-step or --resume into a step name.
func (f *workflowFlags) startStep(t *models.Target, workflow string) (string, error) {
	if !f.resume {
		return f.fromStep, nil
	}
	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	report, err := deploy.LoadReport(deploy.ReportPath(dir, t.Name, workflow))
	if err != nil {
		return "", fmt.Errorf("cannot resume: %w", err)
	}
	step := report.FirstFailed()
	if step == "" {
		return "", fmt.Errorf("nothing to resume: the last %s run for %s has no failed step", workflow, t.Name)
	}
	logger.Get().Infof("Resuming %s from step %s", workflow, step)
	return step, nil
}

// finishRun prints the summary and persists the report.
func (f *workflowFlags) finishRun(cmd *cobra.Command, report *deploy.Report) {
	if report == nil {
		return
	}
	l := logger.Get()
	fmt.Fprintln(cmd.OutOrStdout(), display.RenderSummary(report))

	if f.noReport {
		return
	}
	dir, err := stateDir()
	if err != nil {
		l.Warnf("Failed to resolve state directory: %v", err)
		return
	}
	path, err := report.Save(dir)
	if err != nil {
		l.Warnf("Failed to save report: %v", err)
		return
	}
	l.Infof("Report written to %s", path)
}
