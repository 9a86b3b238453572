package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/ruls-install/internal/service/status"
)

// statusCmd prints the slot state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is installed and whether a backup exists.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return status.Run(ctx, &status.Options{ConfigPath: configPath})
	},
}
