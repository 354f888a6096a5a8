package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bacalhau-project/vpsdeploy/pkg/deploy"
	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix       = "VPSDEPLOY"
	defaultEnvFile  = ".env.deploy"
	defaultStateDir = "~/.vpsdeploy/state"
)

var (
	cfgFile     string
	envFile     string
	verboseMode bool
	targetName  string
)

// connectFunc opens the remote session for a run.
var connectFunc deploy.Connector = deploy.SSHConnector

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vpsdeploy",
		Short: "vpsdeploy ships a static frontend and a Node API to a VPS",
		Long: `vpsdeploy uploads a built frontend and an API to a single host over
SSH/SFTP, restarts the API under pm2 and keeps the nginx site config in
shape. Hosts and paths are configured as named targets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initialize(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			logger.Close()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vpsdeploy.yaml)")
	pf.StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file loaded before reading configuration")
	pf.BoolVarP(&verboseMode, "verbose", "v", false, "Enable verbose output")
	pf.String("log-level", logger.InfoLogLevel, "Log level (debug, info, warn, error)")
	pf.String("log-file", "", "Also write logs to this file")
	pf.String("log-format", "text", "Log file format (text or json)")
	pf.String("state-dir", defaultStateDir, "Directory for run reports")
	pf.StringVarP(&targetName, "target", "t", "", "Target name from the config file")
	addTargetOverrideFlags(rootCmd)

	for key, flag := range map[string]string{
		"general.log_level":  "log-level",
		"general.log_file":   "log-file",
		"general.log_format": "log-format",
		"general.state_dir":  "state-dir",
	} {
		cobra.CheckErr(viper.BindPFlag(key, pf.Lookup(flag)))
	}

	rootCmd.AddCommand(
		getDeployCmd(),
		getPatchNginxCmd(),
		getTargetsCmd(),
		getCompletionCmd(),
		getVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command with ctx, which is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func initialize(cmd *cobra.Command) error {
	if err := loadEnvFile(cmd); err != nil {
		return err
	}
	if err := initConfig(); err != nil {
		return err
	}
	return initLogging(cmd)
}

// loadEnvFile loads the dotenv file if present. Variables already set in
// the environment win.
func loadEnvFile(cmd *cobra.Command) error {
	path, err := homedir.Expand(envFile)
	if err != nil {
		return fmt.Errorf("failed to expand env file path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !cmd.Flags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("failed to read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}

	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("failed to find home directory: %w", err)
	}
	viper.AddConfigPath(home)
	viper.SetConfigType("yaml")
	viper.SetConfigName(".vpsdeploy")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func initLogging(cmd *cobra.Command) error {
	level := viper.GetString("general.log_level")
	if verboseMode {
		level = logger.DebugLogLevel
	}
	logFile, err := homedir.Expand(viper.GetString("general.log_file"))
	if err != nil {
		return fmt.Errorf("failed to expand log file path: %w", err)
	}

	if err := logger.Initialize(logger.Config{
		Level:         level,
		FilePath:      logFile,
		Format:        viper.GetString("general.log_format"),
		EnableConsole: true,
		Console:       cmd.ErrOrStderr(),
	}); err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Get().Debugf("Using config file: %s", used)
	}
	return nil
}

func stateDir() (string, error) {
	dir := viper.GetString("general.state_dir")
	if dir == "" {
		dir = defaultStateDir
	}
	return homedir.Expand(dir)
}
