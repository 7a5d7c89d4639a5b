package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"kiln/internal/logger"
)

var (
	verbose bool
	log     = logger.New()
)

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Kiln - session and transport client for networked 3D printers",
	Long: `Kiln talks to MakerBot-generation printer controllers over their two
channels: the HTTP authorization flow for pairing and token minting, and the
TCP JSON-RPC command channel for printer operations.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetSilentMode(false)
			logger.SetLevel("debug")
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(cliCmd)
	rootCmd.AddCommand(simCmd)
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
