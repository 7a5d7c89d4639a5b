package cmd

import (
	"github.com/spf13/cobra"
	"kiln/cmd/cli"
	"kiln/internal/logger"
)

var cliDebug bool

var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Start the interactive CLI interface",
	Long: `Launch the interactive Terminal User Interface for Kiln. Connect to a
paired printer, watch its status, and run common operations without
remembering subcommands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cliDebug {
			logger.SetSilentMode(false)
			logger.SetLevel("debug")
		}

		if err := cli.StartTUI(); err != nil {
			log.Error().Err(err).Msg("Failed to start TUI")
			return err
		}

		return nil
	},
}

func init() {
	cliCmd.Flags().BoolVar(&cliDebug, "debug", false, "Enable debug logging for device traffic")
}
