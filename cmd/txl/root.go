package txl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zefrenchwan/txl.git/config"
	"go.uber.org/zap"
)

var (
	Version        = "develop"
	CommitHash     = "n/a"
	BuildTimestamp = "n/a"

	// settings holds flags, environment and config file values
	settings = config.NewViper()

	rootCmd = &cobra.Command{
		Use:           "txl",
		Short:         "TXL is a temporal and spatial store of statements in contexts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ReadFile(settings, settings.GetString("config"))
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the txl config file (default ./txl.toml)")
	rootCmd.PersistentFlags().String("log-level", config.DEFAULT_LOG_LEVEL, "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-development", false, "Human readable logs")

	settings.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	settings.BindPFlag(config.LOG_LEVEL_KEY, rootCmd.PersistentFlags().Lookup("log-level"))
	settings.BindPFlag(config.LOG_DEVELOPMENT_KEY, rootCmd.PersistentFlags().Lookup("log-development"))

	rootCmd.SetVersionTemplate(fmt.Sprintf("txl version: %s git_commit: %s build_time: %s\n", Version, CommitHash, BuildTimestamp))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadSettings reads and validates config, then builds the logger
func loadSettings() (config.Config, *zap.Logger, error) {
	current := config.Load(settings)
	if err := current.Validate(); err != nil {
		return current, nil, err
	}

	logger, err := current.BuildLogger()
	return current, logger, err
}

// Execute runs the root command and exits on error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "txl:", err)
		os.Exit(1)
	}
}
