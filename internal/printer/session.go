package printer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"kiln/internal/logger"
)

// SessionConfig carries everything a session needs, fixed at construction.
// The authorization code is the one exception: it may be filled in later by
// Pair for a not-yet-paired device.
type SessionConfig struct {
	Host     string
	Identity Identity
	AuthCode AuthorizationCode
	Timeouts Timeouts
	Tuning   RecoveryTuning

	// Optional host:port overrides for each channel, used against
	// simulators and port-forwarded devices. Left empty, both channels
	// derive from Host with the device's default ports.
	AuthAddr    string
	CommandAddr string
}

// Session is the façade for logical printer operations. Every operation
// opens its own command-channel connection, authenticates it with a freshly
// minted token, issues its calls, and closes the connection on every exit
// path. Connections are never pooled or reused across operations; that
// mirrors the device's one-token-per-connection contract.
//
// A Session is safe for sequential use. The authorization code is guarded
// so a Session may be shared across goroutines, but the device's tolerance
// for concurrent authenticated connections is unverified, so callers should
// serialize operations against one device.
type Session struct {
	timeouts  Timeouts
	tuning    RecoveryTuning
	authority *TokenAuthority
	logger    zerolog.Logger

	mu       sync.Mutex
	authCode AuthorizationCode

	// Hooks replaced by tests; production wiring is set in NewSession
	dial func(ctx context.Context) (Transport, error)
	mint func(ctx context.Context, code AuthorizationCode, tc TokenContext) (string, error)
}

// NewSession creates a session for one device
func NewSession(cfg SessionConfig) *Session {
	if cfg.Identity == (Identity{}) {
		cfg.Identity = DefaultIdentity()
	}
	authAddr := cfg.AuthAddr
	if authAddr == "" {
		authAddr = cfg.Host
	}
	commandAddr := cfg.CommandAddr
	if commandAddr == "" {
		commandAddr = cfg.Host
	}

	timeouts := cfg.Timeouts.withDefaults()
	authority := NewTokenAuthority(authAddr, cfg.Identity, timeouts)

	s := &Session{
		timeouts:  timeouts,
		tuning:    cfg.Tuning.withDefaults(),
		authority: authority,
		logger:    logger.Component("session").With().Str("host", cfg.Host).Logger(),
		authCode:  cfg.AuthCode,
	}
	s.dial = func(ctx context.Context) (Transport, error) {
		return Dial(ctx, commandAddr, timeouts)
	}
	s.mint = authority.MintAccessToken
	return s
}

// Authority exposes the session's token authority, mainly for probing
func (s *Session) Authority() *TokenAuthority {
	return s.authority
}

// AuthorizationCode returns the code currently held by the session
func (s *Session) AuthorizationCode() AuthorizationCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authCode
}

// Pair runs the device-authorization flow and stores the resulting code on
// the session. Blocks until the user confirms on the device or the polling
// ceiling is hit.
func (s *Session) Pair(ctx context.Context, username string) (AuthorizationCode, error) {
	code, err := s.authority.Authorize(ctx, username)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.authCode = code
	s.mu.Unlock()
	return code, nil
}

// operation runs fn on a freshly opened and authenticated connection. The
// connection is closed on every path out, including authentication failure.
func (s *Session) operation(ctx context.Context, fn func(conn Transport) (RPCResponse, error)) (RPCResponse, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := s.authenticate(ctx, conn); err != nil {
		return nil, err
	}

	return fn(conn)
}

// authenticate mints a jsonrpc-context token and presents it on the
// connection. The token is single-use; nothing is retained on success.
func (s *Session) authenticate(ctx context.Context, conn Transport) error {
	token, err := s.mint(ctx, s.AuthorizationCode(), ContextJSONRPC)
	if err != nil {
		return err
	}

	resp, err := conn.Request(ctx, MethodAuthenticate, map[string]any{"access_token": token})
	if err != nil {
		return err
	}

	if status, _ := resp.String("status"); status != "success" {
		return fmt.Errorf("%w: status %q", ErrAuthenticationFailed, status)
	}

	return nil
}

// callUntilSettled issues a call and re-issues it while the device keeps
// echoing the method name back, which is its "still processing" signal.
// The loop is bounded; the original tooling spins forever here.
func (s *Session) callUntilSettled(ctx context.Context, conn Transport, method RPCMethod, params any) (RPCResponse, error) {
	resp, err := poll(ctx, s.timeouts.EchoAttempts, s.timeouts.EchoDelay, func() (RPCResponse, bool, error) {
		resp, err := conn.Request(ctx, method, params)
		if err != nil {
			return nil, false, err
		}
		return resp, !resp.Echoed(), nil
	})

	if err == errBudgetExhausted {
		return nil, fmt.Errorf("%w: %s", ErrPollExhausted, method)
	}
	return resp, err
}

// processCommand precedes a process-mutating command with the preparatory
// process_method call the firmware expects before filament and stop
// operations
func (s *Session) processCommand(ctx context.Context, conn Transport, method RPCMethod, params any) (RPCResponse, error) {
	if _, err := conn.Request(ctx, MethodProcessMethod, map[string]any{"method": string(method)}); err != nil {
		return nil, err
	}
	return s.callUntilSettled(ctx, conn, method, params)
}

// LoadFilament starts the filament load process on a tool
func (s *Session) LoadFilament(ctx context.Context, toolIndex int) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.processCommand(ctx, conn, MethodLoadFilament, map[string]any{"tool_index": toolIndex})
	})
}

// UnloadFilament starts the filament unload process on a tool
func (s *Session) UnloadFilament(ctx context.Context, toolIndex int) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.processCommand(ctx, conn, MethodUnloadFilament, map[string]any{"tool_index": toolIndex})
	})
}

// Cancel stops the current process
func (s *Session) Cancel(ctx context.Context) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.processCommand(ctx, conn, MethodCancel, map[string]any{})
	})
}

// LoadPrintTool selects the active print tool
func (s *Session) LoadPrintTool(ctx context.Context, index int) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.callUntilSettled(ctx, conn, MethodLoadPrintTool, map[string]any{"index": index})
	})
}

// ToolUsageStats returns the device's per-tool usage counters
func (s *Session) ToolUsageStats(ctx context.Context) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.callUntilSettled(ctx, conn, MethodToolUsageStats, nil)
	})
}

// SystemInformation returns firmware, machine and temperature state
func (s *Session) SystemInformation(ctx context.Context) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.callUntilSettled(ctx, conn, MethodSystemInformation, nil)
	})
}

// MachineQuery issues a raw machine function call
func (s *Session) MachineQuery(ctx context.Context, machineFunc string, params map[string]any) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.callUntilSettled(ctx, conn, MethodMachineQuery, map[string]any{
			"machine_func": machineFunc,
			"params":       params,
		})
	})
}

// Pause suspends the running process
func (s *Session) Pause(ctx context.Context) (RPCResponse, error) {
	return s.MachineQuery(ctx, MachineFuncPause, nil)
}

// Resume continues a paused process
func (s *Session) Resume(ctx context.Context) (RPCResponse, error) {
	return s.MachineQuery(ctx, MachineFuncResume, nil)
}

// Preheat drives the tools toward the given temperatures (°C, one entry per
// tool)
func (s *Session) Preheat(ctx context.Context, temperatures []int) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.callUntilSettled(ctx, conn, MethodPreheat, map[string]any{"temperature_settings": temperatures})
	})
}

// Cool turns heaters off
func (s *Session) Cool(ctx context.Context, ignoreToolErrors bool) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.callUntilSettled(ctx, conn, MethodCool, map[string]any{"ignore_tool_errors": ignoreToolErrors})
	})
}

// Print starts a print from an external URL
func (s *Session) Print(ctx context.Context, fileURL string, ensureBuildPlateClear bool) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.callUntilSettled(ctx, conn, MethodExternalPrint, map[string]any{
			"url":                      fileURL,
			"ensure_build_plate_clear": ensureBuildPlateClear,
		})
	})
}

// PrintAgain re-runs the last completed print
func (s *Session) PrintAgain(ctx context.Context) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.callUntilSettled(ctx, conn, MethodPrintAgain, nil)
	})
}

// Acknowledge clears a device-reported error by id
func (s *Session) Acknowledge(ctx context.Context, errorID string) (RPCResponse, error) {
	return s.operation(ctx, func(conn Transport) (RPCResponse, error) {
		return s.callUntilSettled(ctx, conn, MethodAcknowledged, map[string]any{"error_id": errorID})
	})
}
