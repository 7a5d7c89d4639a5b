// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"kiln/internal/logger"
	"kiln/internal/printer"
	"kiln/internal/sim"
)

var (
	simHTTPAddr    string
	simRPCAddr     string
	simAcceptAfter int
	simBusy        int
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a simulated printer",
	Long: `Run a simulated printer serving the /auth pairing flow on HTTP and
the JSON-RPC command channel on TCP. Useful for development without
hardware; point kiln at it with --host and the matching ports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.SetSilentMode(false)

		busy := map[printer.RPCMethod]int{}
		if simBusy > 0 {
			// Echo the busy signal on the methods that stall on real
			// hardware while the process spins up
			for _, m := range []printer.RPCMethod{
				printer.MethodPreheat,
				printer.MethodLoadFilament,
				printer.MethodUnloadFilament,
			} {
				busy[m] = simBusy
			}
		}

		device, err := sim.New(sim.Options{
			AcceptAfter: simAcceptAfter,
			BusyReplies: busy,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return device.Run(ctx, simHTTPAddr, simRPCAddr)
	},
}

func init() {
	simCmd.Flags().StringVar(&simHTTPAddr, "http-addr", ":8080", "HTTP (auth channel) listen address")
	simCmd.Flags().StringVar(&simRPCAddr, "rpc-addr", ":9999", "TCP (command channel) listen address")
	simCmd.Flags().IntVar(&simAcceptAfter, "accept-after", 3, "accept pairing on the Nth answer poll")
	simCmd.Flags().IntVar(&simBusy, "busy", 2, "method-echo replies before commands settle")
}
