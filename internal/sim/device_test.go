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

package sim

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/printer"
)

// testTimeouts keeps the polling loops fast in tests
var testTimeouts = printer.Timeouts{
	AcceptAttempts: 10,
	AcceptDelay:    time.Millisecond,
	EchoAttempts:   10,
	EchoDelay:      time.Millisecond,
}

// startDevice brings up both channels of a simulated device on loopback and
// returns addresses the client packages can be pointed at
func startDevice(t *testing.T, opts Options) (*Device, string, string) {
	t.Helper()

	device, err := New(opts)
	require.NoError(t, err)

	httpServer := httptest.NewServer(device.Router())
	t.Cleanup(httpServer.Close)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() { _ = device.ServeRPC(ln) }()

	authAddr := strings.TrimPrefix(httpServer.URL, "http://")
	return device, authAddr, ln.Addr().String()
}

func newDeviceSession(authAddr, commandAddr string) *printer.Session {
	return printer.NewSession(printer.SessionConfig{
		Host:        "127.0.0.1",
		Timeouts:    testTimeouts,
		AuthAddr:    authAddr,
		CommandAddr: commandAddr,
	})
}

func TestDeviceAuthFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("probe identifies the device", func(t *testing.T) {
		_, authAddr, commandAddr := startDevice(t, Options{})
		session := newDeviceSession(authAddr, commandAddr)

		assert.NoError(t, session.Authority().Probe(ctx))
	})

	t.Run("pairing is accepted after the configured number of polls", func(t *testing.T) {
		_, authAddr, commandAddr := startDevice(t, Options{AcceptAfter: 3})
		session := newDeviceSession(authAddr, commandAddr)

		code, err := session.Pair(ctx, "gopher")
		require.NoError(t, err)
		assert.NotEmpty(t, code)
		assert.Equal(t, code, session.AuthorizationCode())
	})

	t.Run("pairing past the polling ceiling times out", func(t *testing.T) {
		_, authAddr, commandAddr := startDevice(t, Options{AcceptAfter: 50})
		session := newDeviceSession(authAddr, commandAddr)

		_, err := session.Pair(ctx, "gopher")
		assert.ErrorIs(t, err, printer.ErrAuthTimeout)
	})

	t.Run("wrong identity is denied", func(t *testing.T) {
		device, err := New(Options{})
		require.NoError(t, err)
		httpServer := httptest.NewServer(device.Router())
		defer httpServer.Close()

		authority := printer.NewTokenAuthority(
			strings.TrimPrefix(httpServer.URL, "http://"),
			printer.Identity{ClientID: "MakerWare", ClientSecret: "wrong"},
			testTimeouts,
		)
		_, err = authority.RequestPairing(ctx, "gopher")
		assert.ErrorIs(t, err, printer.ErrProtocol)
	})

	t.Run("minting with a bogus authorization code fails", func(t *testing.T) {
		_, authAddr, commandAddr := startDevice(t, Options{})
		session := newDeviceSession(authAddr, commandAddr)

		_, err := session.Authority().MintAccessToken(ctx, "not-a-code", printer.ContextJSONRPC)
		assert.ErrorIs(t, err, printer.ErrAuth)
	})
}

func TestDeviceTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("tokens are single use", func(t *testing.T) {
		device, authAddr, commandAddr := startDevice(t, Options{AcceptAfter: 1})
		session := newDeviceSession(authAddr, commandAddr)

		code, err := session.Pair(ctx, "gopher")
		require.NoError(t, err)

		token, err := session.Authority().MintAccessToken(ctx, code, printer.ContextJSONRPC)
		require.NoError(t, err)

		assert.True(t, device.consumeToken(token, printer.ContextJSONRPC))
		assert.False(t, device.consumeToken(token, printer.ContextJSONRPC))
	})

	t.Run("a token is bound to its context", func(t *testing.T) {
		device, authAddr, commandAddr := startDevice(t, Options{AcceptAfter: 1})
		session := newDeviceSession(authAddr, commandAddr)

		code, err := session.Pair(ctx, "gopher")
		require.NoError(t, err)

		token, err := session.Authority().MintAccessToken(ctx, code, printer.ContextCamera)
		require.NoError(t, err)

		assert.False(t, device.consumeToken(token, printer.ContextJSONRPC))
		assert.True(t, device.consumeToken(token, printer.ContextCamera))
	})
}

func TestDeviceCommandChannel(t *testing.T) {
	ctx := context.Background()

	// pairedSession pairs a fresh session against a fresh device
	pairedSession := func(t *testing.T, opts Options) *printer.Session {
		t.Helper()
		if opts.AcceptAfter == 0 {
			opts.AcceptAfter = 1
		}
		_, authAddr, commandAddr := startDevice(t, opts)
		session := newDeviceSession(authAddr, commandAddr)
		_, err := session.Pair(ctx, "gopher")
		require.NoError(t, err)
		return session
	}

	t.Run("system information round trip", func(t *testing.T) {
		session := pairedSession(t, Options{})

		resp, err := session.SystemInformation(ctx)
		require.NoError(t, err)

		name, ok := resp.String("machine_name")
		assert.True(t, ok)
		assert.Equal(t, "kiln-sim", name)
	})

	t.Run("an unauthenticated call is rejected", func(t *testing.T) {
		_, _, commandAddr := startDevice(t, Options{})

		conn, err := printer.Dial(ctx, commandAddr, testTimeouts)
		require.NoError(t, err)
		defer conn.Close()

		resp, err := conn.Request(ctx, printer.MethodSystemInformation, nil)
		require.NoError(t, err)
		status, _ := resp.String("status")
		assert.Equal(t, "unauthorized", status)
	})

	t.Run("a spent token is rejected on a second connection", func(t *testing.T) {
		_, authAddr, commandAddr := startDevice(t, Options{AcceptAfter: 1})
		session := newDeviceSession(authAddr, commandAddr)
		code, err := session.Pair(ctx, "gopher")
		require.NoError(t, err)

		token, err := session.Authority().MintAccessToken(ctx, code, printer.ContextJSONRPC)
		require.NoError(t, err)
		params := map[string]any{"access_token": token}

		first, err := printer.Dial(ctx, commandAddr, testTimeouts)
		require.NoError(t, err)
		defer first.Close()
		resp, err := first.Request(ctx, printer.MethodAuthenticate, params)
		require.NoError(t, err)
		status, _ := resp.String("status")
		require.Equal(t, "success", status)

		second, err := printer.Dial(ctx, commandAddr, testTimeouts)
		require.NoError(t, err)
		defer second.Close()
		resp, err = second.Request(ctx, printer.MethodAuthenticate, params)
		require.NoError(t, err)
		status, _ = resp.String("status")
		assert.Equal(t, "denied", status)
	})

	t.Run("preheat rides out the busy echoes", func(t *testing.T) {
		session := pairedSession(t, Options{
			BusyReplies: map[printer.RPCMethod]int{printer.MethodPreheat: 2},
		})

		resp, err := session.Preheat(ctx, []int{215})
		require.NoError(t, err)

		temp, ok := resp.Number("temperature")
		assert.True(t, ok)
		assert.Equal(t, float64(215), temp)
	})

	t.Run("a device that never settles exhausts the echo budget", func(t *testing.T) {
		session := pairedSession(t, Options{
			BusyReplies: map[printer.RPCMethod]int{printer.MethodCool: 1000},
		})

		_, err := session.Cool(ctx, false)
		assert.ErrorIs(t, err, printer.ErrPollExhausted)
	})

	t.Run("filament load updates the reported process", func(t *testing.T) {
		session := pairedSession(t, Options{})

		_, err := session.LoadFilament(ctx, 0)
		require.NoError(t, err)

		resp, err := session.SystemInformation(ctx)
		require.NoError(t, err)
		process, _ := resp.String("process")
		assert.Equal(t, "load_filament", process)
	})

	t.Run("pause and resume toggle the paused flag", func(t *testing.T) {
		session := pairedSession(t, Options{})

		_, err := session.Pause(ctx)
		require.NoError(t, err)
		resp, err := session.SystemInformation(ctx)
		require.NoError(t, err)
		assert.Equal(t, true, resp["paused"])

		_, err = session.Resume(ctx)
		require.NoError(t, err)
		resp, err = session.SystemInformation(ctx)
		require.NoError(t, err)
		assert.Equal(t, false, resp["paused"])
	})
}

func TestDeviceCamera(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9}
	_, authAddr, commandAddr := startDevice(t, Options{CameraFrame: frame})
	session := newDeviceSession(authAddr, commandAddr)

	captured, err := session.CaptureFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, frame, captured.Bytes)
	assert.Equal(t, "/9gBAv/Z", captured.Base64)
}
