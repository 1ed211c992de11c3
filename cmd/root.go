package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

// DebugMode enables debug logging
var DebugMode bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kubefleet",
	Short: "A CLI tool to bootstrap k3s clusters on a fleet of machines",
	Long: `A tool for creating and managing k3s clusters on Hetzner Cloud or on machines you already have.

Every machine gets a stable identity derived from the sizing configuration, then k3s is installed
over SSH in dependency order and the kubeconfig of the new cluster is handed back.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(DebugMode)
		if err != nil {
			return err
		}
		AppConf.Logger = logger

		if DefaultConfigPath == "" {
			if DefaultConfigPath, err = defaultConfigPath(); err != nil {
				return err
			}
		}
		config, err := loadConfig()
		if err != nil {
			return err
		}
		AppConf.Config = config

		if config.ActiveContextName != "" {
			if err := AppConf.SwitchContextByName(config.ActiveContextName); err != nil {
				logger.Warnw("active context not found", "context", config.ActiveContextName)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if AppConf.Logger != nil {
			_ = AppConf.Logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file to use (default is $HOME/.kubefleet.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&DebugMode, "debug", "d", false, "debug mode")

	setDefaults(viper.GetViper())
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config = zap.NewDevelopmentConfig()
	}
	config.OutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		setConfigDirectory()
	}

	// read in environment variables that match, e.g. KUBEFLEET_HCLOUD_TOKEN for hcloud.token
	viper.SetEnvPrefix("kubefleet")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil && DebugMode {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func setConfigDirectory() {
	// Find config dir based on XDG Base Directory Specification
	// https://specifications.freedesktop.org/basedir-spec/basedir-spec-latest.html
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig != "" {
		viper.AddConfigPath(xdgConfig)
	}

	// Failback to home directory
	home, err := homedir.Dir()
	if err == nil {
		viper.AddConfigPath(home)
	}

	if xdgConfig == "" && err != nil {
		fmt.Fprintln(os.Stderr, "Unable to detect any config location, please specify it with --config flag")
		os.Exit(1)
	}

	// Search config directory with name ".kubefleet" (without extension).
	viper.SetConfigName(".kubefleet")
}
