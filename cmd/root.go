// Package cmd defines the CLI commands for the progressd executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/learner-progress/internal/config"
	"github.com/JakeFAU/learner-progress/internal/logging"
)

const serviceName = "progressd"

// cliEnv is what every subcommand receives after the root pre-run hook.
type cliEnv struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		rt      cliEnv
	)
	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Learner engagement and completion tracker.",
		Long: `progressd accumulates engagement time for learners across leaves,
groupings and containers, and records completion exactly once per node.`,
		SilenceUsage: true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				Service:     serviceName,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			rt.cfg = cfg
			rt.logger = logger
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); PROGRESS_* env vars override it")
	cmd.AddCommand(newServeCmd(&rt), newMigrateCmd(&rt))
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}
