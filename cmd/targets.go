package cmd

import (
	"fmt"

	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"
)

// targetView is what "targets" prints. The password itself never leaves
// the process.
type targetView struct {
	*models.Target
	PasswordSet bool `json:"password_set"`
}

func getTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "Show the resolved configuration of each target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := models.TargetNames(viper.GetViper())
			if targetName != "" {
				names = []string{targetName}
			}
			if len(names) == 0 {
				names = []string{models.DefaultTargetName}
			}

			views := make([]targetView, 0, len(names))
			for _, name := range names {
				t, err := models.ReadTargetFromViper(viper.GetViper(), name)
				if err != nil {
					return err
				}
				views = append(views, targetView{Target: t, PasswordSet: t.Password != ""})
			}

			b, err := yaml.Marshal(views)
			if err != nil {
				return fmt.Errorf("failed to render targets: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}
