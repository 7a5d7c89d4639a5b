package printer

import "errors"

// Failure kinds surfaced by the session and transport layer. Callers
// discriminate with errors.Is; every error returned by this package wraps
// exactly one of these sentinels. Cancellation propagates as the caller's
// context error and is not re-wrapped.
var (
	// ErrConnect covers an unreachable device on either channel
	ErrConnect = errors.New("device unreachable")

	// ErrAuthTimeout means the user never accepted the pairing request
	// within the polling ceiling; the flow must be restarted
	ErrAuthTimeout = errors.New("pairing not accepted within polling ceiling")

	// ErrAuth means the device declined to mint an access token. The next
	// operation may retry from scratch since tokens are never reused.
	ErrAuth = errors.New("access token mint rejected")

	// ErrAuthenticationFailed means the device rejected the token on the
	// command channel; the operation is aborted
	ErrAuthenticationFailed = errors.New("device rejected access token")

	// ErrProtocol covers malformed or unparseable device responses
	ErrProtocol = errors.New("malformed device response")

	// ErrPollExhausted means the device kept echoing the method name past
	// the retry budget
	ErrPollExhausted = errors.New("device still busy after retry budget")
)
