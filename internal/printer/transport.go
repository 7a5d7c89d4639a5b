package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"kiln/internal/logger"
)

// Timeouts collects the tunable timing parameters of both channels. The
// zero value of any field falls back to the package default.
type Timeouts struct {
	// HTTP is the connect/read timeout on the auth channel
	HTTP time.Duration
	// Dial bounds TCP connection establishment on the command channel.
	// The original tooling set no socket timeout at all; an unreachable
	// device would hang indefinitely.
	Dial time.Duration
	// Read bounds a single request/response exchange when the caller's
	// context carries no deadline of its own
	Read time.Duration

	// Acceptance polling (pairing)
	AcceptAttempts int
	AcceptDelay    time.Duration

	// Method-echo polling (busy device)
	EchoAttempts int
	EchoDelay    time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.HTTP <= 0 {
		t.HTTP = DefaultHTTPTimeout
	}
	if t.Dial <= 0 {
		t.Dial = DefaultDialTimeout
	}
	if t.AcceptAttempts <= 0 {
		t.AcceptAttempts = DefaultAcceptAttempts
	}
	if t.AcceptDelay <= 0 {
		t.AcceptDelay = DefaultAcceptDelay
	}
	if t.EchoAttempts <= 0 {
		t.EchoAttempts = DefaultEchoAttempts
	}
	if t.EchoDelay <= 0 {
		t.EchoDelay = DefaultEchoDelay
	}
	return t
}

// Transport is a single open command-channel connection. The channel is
// strictly half-duplex: one request in flight, the response read in full
// before the next request is written.
type Transport interface {
	Request(ctx context.Context, method RPCMethod, params any) (RPCResponse, error)
	Close() error
}

type tcpTransport struct {
	conn net.Conn
	dec  *json.Decoder
	read time.Duration
	log  zerolog.Logger
}

// Dial opens a command-channel connection to the device. The device
// firmware listens on IPv4 only. addr may omit the port, in which case the
// device default applies.
func Dial(ctx context.Context, addr string, timeouts Timeouts) (Transport, error) {
	timeouts = timeouts.withDefaults()

	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(CommandPort))
	}
	dialer := net.Dialer{Timeout: timeouts.Dial}

	conn, err := dialer.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnect, addr, err)
	}

	t := &tcpTransport{
		conn: conn,
		dec:  json.NewDecoder(conn),
		read: timeouts.Read,
		log:  logger.Component("transport"),
	}

	t.log.Debug().Str("addr", addr).Msg("Command channel opened")
	return t, nil
}

// Request serializes one frame, writes it, and reads one complete JSON
// document back. The decoder keeps reading until the document closes, so
// responses larger than a single socket read are handled. Any buffered
// trailing bytes belong to this connection's next response.
func (t *tcpTransport) Request(ctx context.Context, method RPCMethod, params any) (RPCResponse, error) {
	frame, err := json.Marshal(NewRPCRequest(method, params))
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrProtocol, method, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetDeadline(deadline)
	} else if t.read > 0 {
		_ = t.conn.SetDeadline(time.Now().Add(t.read))
	}

	t.log.Debug().Str("method", string(method)).RawJSON("frame", frame).Msg("RPC request")

	if _, err := t.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrConnect, method, err)
	}

	var resp RPCResponse
	if err := t.dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: read %s reply: %v", ErrProtocol, method, err)
	}

	t.log.Debug().Str("method", string(method)).Int("fields", len(resp)).Msg("RPC response")
	return resp, nil
}

func (t *tcpTransport) Close() error {
	t.log.Debug().Msg("Command channel closed")
	return t.conn.Close()
}
