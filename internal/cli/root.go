// Package cli provides the command-line interface for VMStudio.
package cli

import (
	"fmt"

	"github.com/javanstorm/vmstudio/internal/config"
	"github.com/javanstorm/vmstudio/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "vmstudio",
	Short: "VMStudio - lightweight Linux virtual machines",
	Long: `VMStudio runs lightweight Linux virtual machines on macOS and Linux.

Machines live in a local library, boot in seconds, and share a guest
tools image that is downloaded once and attached to every guest.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		switch cmd.Name() {
		case "version", "completion":
			return nil
		}
		return config.Load()
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// newLogger builds a logger from the loaded configuration.
func newLogger() *zap.Logger {
	cfg := config.Global
	if cfg == nil {
		return logging.NewDefault()
	}
	log, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return logging.NewDefault()
	}
	return log
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(machineCmd)
	rootCmd.AddCommand(toolsCmd)
}
