package printer

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCRequestFrame(t *testing.T) {
	t.Run("round-trips with explicit null params", func(t *testing.T) {
		frame, err := json.Marshal(NewRPCRequest(MethodSystemInformation, nil))
		require.NoError(t, err)

		// params must be serialized as an explicit null, never omitted
		assert.Contains(t, string(frame), `"params":null`)

		var parsed map[string]any
		require.NoError(t, json.Unmarshal(frame, &parsed))

		assert.Equal(t, "2.0", parsed["jsonrpc"])
		assert.Equal(t, float64(-1), parsed["id"])
		assert.Equal(t, "get_system_information", parsed["method"])

		params, present := parsed["params"]
		assert.True(t, present)
		assert.Nil(t, params)
	})

	t.Run("carries object params", func(t *testing.T) {
		frame, err := json.Marshal(NewRPCRequest(MethodLoadFilament, map[string]any{"tool_index": 1}))
		require.NoError(t, err)

		var parsed map[string]any
		require.NoError(t, json.Unmarshal(frame, &parsed))
		assert.Equal(t, map[string]any{"tool_index": float64(1)}, parsed["params"])
	})
}

// startRPCServer runs a one-connection scripted device on a loopback
// listener and returns its address
func startRPCServer(t *testing.T, handle func(conn net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()

	return ln.Addr().String()
}

func TestTransportRequest(t *testing.T) {
	t.Run("writes one frame and reads one document", func(t *testing.T) {
		var received RPCRequest

		addr := startRPCServer(t, func(conn net.Conn) {
			dec := json.NewDecoder(conn)
			if err := dec.Decode(&received); err != nil {
				return
			}
			_ = json.NewEncoder(conn).Encode(map[string]any{"temperature": 215})
		})

		transport, err := Dial(context.Background(), addr, Timeouts{Read: time.Second})
		require.NoError(t, err)
		defer transport.Close()

		resp, err := transport.Request(context.Background(), MethodPreheat, map[string]any{"temperature_settings": []int{215}})
		require.NoError(t, err)

		assert.Equal(t, MethodPreheat, received.Method)
		assert.Equal(t, -1, received.ID)

		temp, ok := resp.Number("temperature")
		assert.True(t, ok)
		assert.Equal(t, float64(215), temp)
	})

	t.Run("reassembles a response spanning multiple reads", func(t *testing.T) {
		// Large payload plus throttled writes: a single fixed-size read
		// would truncate this
		big := make([]byte, 8192)
		for i := range big {
			big[i] = 'a'
		}

		addr := startRPCServer(t, func(conn net.Conn) {
			dec := json.NewDecoder(conn)
			var req RPCRequest
			if err := dec.Decode(&req); err != nil {
				return
			}

			payload, _ := json.Marshal(map[string]any{"blob": string(big)})
			half := len(payload) / 2
			_, _ = conn.Write(payload[:half])
			time.Sleep(20 * time.Millisecond)
			_, _ = conn.Write(payload[half:])
		})

		transport, err := Dial(context.Background(), addr, Timeouts{Read: 2 * time.Second})
		require.NoError(t, err)
		defer transport.Close()

		resp, err := transport.Request(context.Background(), MethodSystemInformation, nil)
		require.NoError(t, err)

		blob, ok := resp.String("blob")
		assert.True(t, ok)
		assert.Len(t, blob, len(big))
	})

	t.Run("flags malformed responses as protocol errors", func(t *testing.T) {
		addr := startRPCServer(t, func(conn net.Conn) {
			dec := json.NewDecoder(conn)
			var req RPCRequest
			if err := dec.Decode(&req); err != nil {
				return
			}
			_, _ = conn.Write([]byte("not json at all\n"))
		})

		transport, err := Dial(context.Background(), addr, Timeouts{Read: time.Second})
		require.NoError(t, err)
		defer transport.Close()

		_, err = transport.Request(context.Background(), MethodCancel, map[string]any{})
		assert.ErrorIs(t, err, ErrProtocol)
	})
}

func TestDial(t *testing.T) {
	t.Run("fails fast on unreachable device", func(t *testing.T) {
		// Grab a port and close it again so nothing is listening
		ln, err := net.Listen("tcp4", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		_, err = Dial(context.Background(), addr, Timeouts{Dial: 500 * time.Millisecond})
		assert.ErrorIs(t, err, ErrConnect)
	})

	t.Run("appends the default command port", func(t *testing.T) {
		// TEST-NET address, nothing routable; the point is that a bare
		// host gets the default port instead of an address parse error
		_, err := Dial(context.Background(), "192.0.2.1", Timeouts{Dial: 50 * time.Millisecond})
		assert.ErrorIs(t, err, ErrConnect)
	})
}
