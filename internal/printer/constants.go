package printer

import "time"

// The device identifies SDK clients by a static id/secret pair baked into the
// vendor tooling. These are not per-user credentials; the user-facing secret
// is the authorization code obtained through pairing.
const (
	ClientID     = "MakerWare"
	ClientSecret = "secret"
)

// Network endpoints on the device
const (
	AuthPort    = 80
	CommandPort = 9999

	AuthPath   = "/auth"
	CameraPath = "/camera"
)

// TokenContext scopes an access token to a single channel on the device
type TokenContext string

const (
	ContextJSONRPC TokenContext = "jsonrpc"
	ContextPut     TokenContext = "put"
	ContextCamera  TokenContext = "camera"
)

// RPCMethod represents a JSON-RPC method understood by the device
type RPCMethod string

const (
	MethodAuthenticate      RPCMethod = "authenticate"
	MethodProcessMethod     RPCMethod = "process_method"
	MethodLoadFilament      RPCMethod = "load_filament"
	MethodUnloadFilament    RPCMethod = "unload_filament"
	MethodCancel            RPCMethod = "cancel"
	MethodLoadPrintTool     RPCMethod = "load_print_tool"
	MethodToolUsageStats    RPCMethod = "get_tool_usage_stats"
	MethodSystemInformation RPCMethod = "get_system_information"
	MethodMachineQuery      RPCMethod = "machine_query_command"
	MethodPreheat           RPCMethod = "preheat"
	MethodCool              RPCMethod = "cool"
	MethodExternalPrint     RPCMethod = "external_print"
	MethodPrintAgain        RPCMethod = "print_again"
	MethodAcknowledged      RPCMethod = "acknowledged"
)

// Machine functions issued through machine_query_command
const (
	MachineFuncPause  = "pause"
	MachineFuncResume = "unpause"
)

// requestID is the fixed id sentinel used in every request frame. The
// command channel is half-duplex with one call in flight, so ids are never
// used for correlation.
const requestID = -1

// Default timing parameters. The acceptance ceiling matches the device
// firmware: 200 one-second polls while the user walks over and presses the
// knob. The echo cap has no firmware equivalent; it exists so a wedged
// device surfaces as an error instead of a livelock.
const (
	DefaultHTTPTimeout    = 5 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultAcceptAttempts = 200
	DefaultAcceptDelay    = time.Second
	DefaultEchoAttempts   = 100
	DefaultEchoDelay      = 500 * time.Millisecond
)

// Default recovery waits. These are empirical process constants (filament
// re-load settling, thermal recovery), not protocol requirements.
const (
	DefaultFilamentSettle  = 15 * time.Second
	DefaultThermalRecovery = 90 * time.Second
)
