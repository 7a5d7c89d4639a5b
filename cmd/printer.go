package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"kiln/internal/config"
	"kiln/internal/printer"
)

var (
	printerHost       string
	printerName       string
	printerAuthCode   string
	printerConfigPath string
)

var printerCmd = &cobra.Command{
	Use:   "printer",
	Short: "Control a paired printer",
	Long: `Control a paired printer over the JSON-RPC command channel.
Every command opens, authenticates and closes its own connection; the
printer mints one access token per connection.`,
}

// resolveSession builds a session from flags, looking the host up in the
// config file when --name is used
func resolveSession() (*printer.Session, error) {
	host := printerHost
	if host == "" && printerName != "" {
		cfg, err := config.Load(printerConfigPath)
		if err != nil {
			return nil, err
		}
		p, err := cfg.Get(printerName)
		if err != nil {
			return nil, err
		}
		host = p.Host
	}
	if host == "" {
		return nil, fmt.Errorf("either --host or --name is required")
	}

	return printer.NewSession(printer.SessionConfig{
		Host:     host,
		AuthCode: printer.AuthorizationCode(printerAuthCode),
	}), nil
}

// runOp runs one printer operation with interrupt handling and pretty
// prints the device's reply
func runOp(fn func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error)) error {
	session, err := resolveSession()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	resp, err := fn(ctx, session)
	if err != nil {
		log.Error().Err(err).Msg("Printer operation failed")
		return err
	}

	pretty, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(pretty))
	return nil
}

func parseToolIndex(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid tool index: %s", args[0])
	}
	return index, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.SystemInformation(ctx)
		})
	},
}

var preheatCmd = &cobra.Command{
	Use:   "preheat [temperature...]",
	Short: "Preheat the tools (°C, one value per tool)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		temps := make([]int, 0, len(args))
		for _, arg := range args {
			t, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("invalid temperature: %s", arg)
			}
			temps = append(temps, t)
		}
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.Preheat(ctx, temps)
		})
	},
}

var coolCmd = &cobra.Command{
	Use:   "cool",
	Short: "Turn heaters off",
	RunE: func(cmd *cobra.Command, args []string) error {
		ignoreToolErrors, _ := cmd.Flags().GetBool("ignore-tool-errors")
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.Cool(ctx, ignoreToolErrors)
		})
	},
}

var loadCmd = &cobra.Command{
	Use:   "load [tool]",
	Short: "Start filament load on a tool (default 0)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := parseToolIndex(args)
		if err != nil {
			return err
		}
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.LoadFilament(ctx, tool)
		})
	},
}

var unloadCmd = &cobra.Command{
	Use:   "unload [tool]",
	Short: "Start filament unload on a tool (default 0)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := parseToolIndex(args)
		if err != nil {
			return err
		}
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.UnloadFilament(ctx, tool)
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the running process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.Cancel(ctx)
		})
	},
}

var printCmd = &cobra.Command{
	Use:   "print [url]",
	Short: "Start a print from a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureClear, _ := cmd.Flags().GetBool("ensure-clear")
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.Print(ctx, args[0], ensureClear)
		})
	},
}

var printAgainCmd = &cobra.Command{
	Use:   "print-again",
	Short: "Re-run the last print",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.PrintAgain(ctx)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show tool usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.ToolUsageStats(ctx)
		})
	},
}

var toolCmd = &cobra.Command{
	Use:   "tool [index]",
	Short: "Select the active print tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid tool index: %s", args[0])
		}
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.LoadPrintTool(ctx, index)
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query [machine_func]",
	Short: "Issue a raw machine function call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.MachineQuery(ctx, args[0], nil)
		})
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack [error_id]",
	Short: "Acknowledge a device-reported error",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
			return s.Acknowledge(ctx, args[0])
		})
	},
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a camera frame",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := resolveSession()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		frame, err := session.CaptureFrame(ctx)
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			fmt.Println(frame.Base64)
			return nil
		}
		if err := os.WriteFile(output, frame.Bytes, 0644); err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(frame.Bytes), output)
		return nil
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover [slip|sag]",
	Short: "Run a recovery sequence on a stalled print",
	Long: `Run a recovery sequence on a stalled print.

  slip  pause, re-feed the filament on tool 0, resume
  sag   pause, re-heat to the given temperatures, resume`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := resolveSession()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		switch args[0] {
		case "slip":
			tool, err := parseToolIndex(args[1:])
			if err != nil {
				return err
			}
			return session.RecoverFilamentSlip(ctx, tool)
		case "sag":
			temps := make([]int, 0, len(args)-1)
			for _, arg := range args[1:] {
				t, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid temperature: %s", arg)
				}
				temps = append(temps, t)
			}
			if len(temps) == 0 {
				return fmt.Errorf("sag recovery needs target temperatures")
			}
			return session.RecoverTemperatureSag(ctx, temps)
		default:
			return fmt.Errorf("unknown recovery: %s (use 'slip' or 'sag')", args[0])
		}
	},
}

func init() {
	printerCmd.PersistentFlags().StringVarP(&printerHost, "host", "H", "", "printer host address")
	printerCmd.PersistentFlags().StringVarP(&printerName, "name", "n", "", "printer name from the config file")
	printerCmd.PersistentFlags().StringVarP(&printerAuthCode, "auth-code", "a", "", "authorization code from pairing")
	printerCmd.PersistentFlags().StringVar(&printerConfigPath, "config", config.DefaultPath, "config file path")

	coolCmd.Flags().Bool("ignore-tool-errors", false, "cool even if a tool reports errors")
	printCmd.Flags().Bool("ensure-clear", true, "require a clear build plate before starting")
	captureCmd.Flags().StringP("output", "o", "", "write the raw frame to a file instead of printing base64")

	printerCmd.AddCommand(statusCmd)
	printerCmd.AddCommand(preheatCmd)
	printerCmd.AddCommand(coolCmd)
	printerCmd.AddCommand(loadCmd)
	printerCmd.AddCommand(unloadCmd)
	printerCmd.AddCommand(cancelCmd)
	printerCmd.AddCommand(printCmd)
	printerCmd.AddCommand(printAgainCmd)
	printerCmd.AddCommand(statsCmd)
	printerCmd.AddCommand(toolCmd)
	printerCmd.AddCommand(queryCmd)
	printerCmd.AddCommand(ackCmd)
	printerCmd.AddCommand(captureCmd)
	printerCmd.AddCommand(recoverCmd)

	rootCmd.AddCommand(printerCmd)
}
