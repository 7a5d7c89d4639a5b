package sim

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"kiln/internal/printer"
)

// rpcRequest is the request frame as the device parses it
type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int               `json:"id"`
	Method  printer.RPCMethod `json:"method"`
	Params  map[string]any    `json:"params"`
}

// ServeRPC accepts command-channel connections on ln until the listener is
// closed. Each connection must authenticate before any other call.
func (d *Device) ServeRPC(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go d.handleConn(conn)
	}
}

func (d *Device) handleConn(conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	authenticated := false

	for {
		var req rpcRequest
		if err := dec.Decode(&req); err != nil {
			return
		}

		d.logger.Debug().Str("method", string(req.Method)).Bool("authenticated", authenticated).Msg("RPC call")

		if !authenticated {
			if req.Method != printer.MethodAuthenticate {
				_ = enc.Encode(map[string]any{"status": "unauthorized"})
				return
			}
			token, _ := req.Params["access_token"].(string)
			if !d.consumeToken(token, printer.ContextJSONRPC) {
				_ = enc.Encode(map[string]any{"status": "denied"})
				return
			}
			authenticated = true
			if err := enc.Encode(map[string]any{"status": "success"}); err != nil {
				return
			}
			continue
		}

		if err := enc.Encode(d.respond(req)); err != nil {
			return
		}
	}
}

// respond produces the reply for one authenticated call, emitting the
// method-echo busy signal first when configured to
func (d *Device) respond(req rpcRequest) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	if left, ok := d.busyLeft[req.Method]; ok && left > 0 {
		d.busyLeft[req.Method] = left - 1
		return map[string]any{"method": string(req.Method)}
	}

	switch req.Method {
	case printer.MethodSystemInformation:
		return map[string]any{
			"machine_type":     "replicator",
			"machine_name":     "kiln-sim",
			"firmware_version": "2.6.0",
			"temperature":      float64(d.targets[0]),
			"process":          d.process,
			"paused":           d.paused,
		}

	case printer.MethodPreheat:
		if raw, ok := req.Params["temperature_settings"].([]any); ok && len(raw) > 0 {
			targets := make([]int, 0, len(raw))
			for _, v := range raw {
				if f, ok := v.(float64); ok {
					targets = append(targets, int(f))
				}
			}
			if len(targets) > 0 {
				d.targets = targets
			}
		}
		return map[string]any{"temperature": float64(d.targets[0])}

	case printer.MethodCool:
		d.targets = []int{0}
		return map[string]any{"temperature": 0.0}

	case printer.MethodProcessMethod:
		return map[string]any{"result": "ok"}

	case printer.MethodLoadFilament:
		d.process = "load_filament"
		return map[string]any{"result": "ok"}

	case printer.MethodUnloadFilament:
		d.process = "unload_filament"
		return map[string]any{"result": "ok"}

	case printer.MethodCancel:
		d.process = ""
		d.paused = false
		return map[string]any{"result": "ok"}

	case printer.MethodLoadPrintTool:
		return map[string]any{"result": "ok"}

	case printer.MethodToolUsageStats:
		return map[string]any{
			"extrusion_distance_mm": 128450.5,
			"extrusion_time_s":      90210.0,
		}

	case printer.MethodMachineQuery:
		machineFunc, _ := req.Params["machine_func"].(string)
		switch machineFunc {
		case printer.MachineFuncPause:
			d.paused = true
		case printer.MachineFuncResume:
			d.paused = false
		}
		return map[string]any{"result": "ok"}

	case printer.MethodExternalPrint:
		d.process = "print"
		return map[string]any{"result": "ok"}

	case printer.MethodPrintAgain:
		d.process = "print"
		return map[string]any{"result": "ok"}

	case printer.MethodAcknowledged:
		return map[string]any{"result": "ok"}

	default:
		return map[string]any{"error": "unknown method"}
	}
}

// Run serves both channels until the context is cancelled. Used by the
// `kiln sim` command; tests wire the listeners themselves.
func (d *Device) Run(ctx context.Context, httpAddr, rpcAddr string) error {
	rpcLn, err := net.Listen("tcp4", rpcAddr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: httpAddr, Handler: d.Router()}

	errCh := make(chan error, 2)
	go func() { errCh <- d.ServeRPC(rpcLn) }()
	go func() { errCh <- httpServer.ListenAndServe() }()

	d.logger.Info().Str("http", httpAddr).Str("rpc", rpcAddr).Msg("Simulator listening")

	select {
	case <-ctx.Done():
		_ = rpcLn.Close()
		_ = httpServer.Close()
		return nil
	case err := <-errCh:
		_ = rpcLn.Close()
		_ = httpServer.Close()
		return err
	}
}
