package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/ruls-install/internal/config"
	"github.com/oshokin/ruls-install/internal/logger"
	"github.com/oshokin/ruls-install/internal/report"
	"github.com/oshokin/ruls-install/internal/service/common"
	"github.com/oshokin/ruls-install/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimum level written to the log.
	logLevel string
	// dryRun executes transitions against an in-memory copy of the slot.
	dryRun bool

	// rootCmd represents the base command when called without any subcommands.
	rootCmd = &cobra.Command{
		Use:   common.CommandName,
		Short: "Install ruls in place of ls and roll it back.",
		Long: `Builds ruls as the user who invoked sudo and installs it over the system ls.

The previous executable is kept in a single backup slot next to the target,
so uninstall restores it byte for byte. Installing twice overwrites that
backup with the first replacement.

Build steps never run as root; only the final copy into the protected
directory does.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("%w: %q", errUnknownLogLevel, logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
	}
)

// Execute runs the CLI, printing failures with their next step and exiting
// with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		report.New(os.Stdout, os.Stderr, common.CommandName).Failure(err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(installCmd, applyCmd, uninstallCmd, statusCmd)
	version.AttachCobraVersionCommand(rootCmd)
}
