package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"kiln/internal/config"
	"kiln/internal/printer"
)

var (
	pairUsername string
	pairSaveName string
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair with a printer",
	Long: `Pair with a printer by running the device-authorization flow. The
printer shows a confirmation prompt on its front panel; press the knob to
accept within the polling window (about 200 seconds).

The printed authorization code is the long-lived credential for all later
commands. Kiln does not store it; keep it yourself and pass it via
--auth-code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if printerHost == "" {
			return fmt.Errorf("--host is required for pairing")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		session := printer.NewSession(printer.SessionConfig{Host: printerHost})

		if err := session.Authority().Probe(ctx); err != nil {
			return fmt.Errorf("no printer at %s: %w", printerHost, err)
		}

		fmt.Printf("Pairing with %s - confirm on the printer's front panel...\n", printerHost)

		code, err := session.Pair(ctx, pairUsername)
		if err != nil {
			return err
		}

		fmt.Printf("Paired. Authorization code: %s\n", code)

		if pairSaveName != "" {
			cfg, err := config.Load(printerConfigPath)
			if err != nil {
				return err
			}
			if err := cfg.Add(config.Printer{Name: pairSaveName, Host: printerHost, Username: pairUsername}); err != nil {
				return err
			}
			if err := cfg.Save(printerConfigPath); err != nil {
				return err
			}
			fmt.Printf("Saved printer '%s' to %s\n", pairSaveName, printerConfigPath)
		}

		return nil
	},
}

func init() {
	pairCmd.Flags().StringVarP(&pairUsername, "username", "u", "kiln", "username shown on the printer's confirmation prompt")
	pairCmd.Flags().StringVarP(&pairSaveName, "save", "s", "", "save the printer under this name in the config file")

	printerCmd.AddCommand(pairCmd)
}
