package cmd

import (
	"fmt"

	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type targetOverrides struct {
	host                  string
	port                  int
	user                  string
	identityFile          string
	knownHosts            string
	insecureIgnoreHostKey bool
	useAgent              bool
}

var overrides targetOverrides

func addTargetOverrideFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&overrides.host, "host", "", "Override the target host")
	pf.IntVar(&overrides.port, "port", 0, "Override the target SSH port")
	pf.StringVarP(&overrides.user, "user", "u", "", "Override the target SSH user")
	pf.StringVarP(&overrides.identityFile, "identity-file", "i", "", "SSH private key file")
	pf.StringVar(&overrides.knownHosts, "known-hosts", "", "known_hosts file used to verify the host key")
	pf.BoolVar(&overrides.insecureIgnoreHostKey, "insecure-ignore-host-key", false,
		"Accept any host key (not recommended)")
	pf.BoolVar(&overrides.useAgent, "use-agent", false, "Offer keys from the running ssh-agent")
}

// resolveTarget builds the selected target from config, environment and
// flags, in that order of precedence.
func resolveTarget(cmd *cobra.Command) (*models.Target, error) {
	name := targetName
	if name == "" {
		name = viper.GetString("general.default_target")
	}
	t, err := models.ReadTargetFromViper(viper.GetViper(), name)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		t.Host = overrides.host
	}
	if flags.Changed("port") {
		t.Port = overrides.port
	}
	if flags.Changed("user") {
		t.User = overrides.user
	}
	if flags.Changed("identity-file") {
		t.PrivateKeyPath = overrides.identityFile
	}
	if flags.Changed("known-hosts") {
		t.KnownHostsPath = overrides.knownHosts
	}
	if flags.Changed("insecure-ignore-host-key") {
		t.InsecureIgnoreHostKey = overrides.insecureIgnoreHostKey
	}
	if flags.Changed("use-agent") {
		t.UseAgent = overrides.useAgent
	}
	if err := t.ExpandPaths(); err != nil {
		return nil, fmt.Errorf("target %q: %w", t.Name, err)
	}
	return t, nil
}
