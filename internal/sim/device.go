// Package sim implements an in-process printer that speaks both halves of
// the device protocol: the /auth pairing flow on HTTP and the JSON-RPC
// command channel on TCP. It backs the `kiln sim` command and serves as the
// stub device in tests.
package sim

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"kiln/internal/logger"
	"kiln/internal/printer"
)

// Bounds on outstanding credentials. Real firmware keeps a handful; the
// LRU just keeps a misbehaving client from growing the maps forever.
const (
	maxPairings  = 16
	maxAuthCodes = 16
	maxTokens    = 64
)

// Options configures simulated behavior
type Options struct {
	// Identity the device expects; zero value means the stock identity
	Identity printer.Identity
	// AcceptAfter is the answer poll on which pairing is accepted.
	// 1 accepts on the first poll; 0 behaves like 1.
	AcceptAfter int
	// BusyReplies maps a method to how many method-echo responses the
	// device emits before answering for real
	BusyReplies map[printer.RPCMethod]int
	// CameraFrame is returned from the camera path
	CameraFrame []byte
}

// pairing tracks one outstanding pairing request
type pairing struct {
	username string
	polls    int
	authCode string
}

// Device is a simulated printer
type Device struct {
	opts       Options
	verifier   *SecretVerifier
	secretHash string
	logger     zerolog.Logger

	mu        sync.Mutex
	pairings  *lru.Cache[string, *pairing]
	authCodes *lru.Cache[string, string]
	tokens    *lru.Cache[string, printer.TokenContext]
	busyLeft  map[printer.RPCMethod]int
	targets   []int
	process   string
	paused    bool
}

// New creates a simulated device
func New(opts Options) (*Device, error) {
	if opts.Identity == (printer.Identity{}) {
		opts.Identity = printer.DefaultIdentity()
	}
	if opts.AcceptAfter < 1 {
		opts.AcceptAfter = 1
	}

	verifier := NewSecretVerifier()
	secretHash, err := verifier.Hash(opts.Identity.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash client secret: %w", err)
	}

	pairings, _ := lru.New[string, *pairing](maxPairings)
	authCodes, _ := lru.New[string, string](maxAuthCodes)
	tokens, _ := lru.New[string, printer.TokenContext](maxTokens)

	busyLeft := make(map[printer.RPCMethod]int, len(opts.BusyReplies))
	for method, count := range opts.BusyReplies {
		busyLeft[method] = count
	}

	return &Device{
		opts:       opts,
		verifier:   verifier,
		secretHash: secretHash,
		logger:     logger.Component("sim"),
		pairings:   pairings,
		authCodes:  authCodes,
		tokens:     tokens,
		busyLeft:   busyLeft,
		targets:    []int{0},
	}, nil
}

// Router returns the HTTP side of the device
func (d *Device) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc(printer.AuthPath, d.handleAuth).Methods(http.MethodGet)
	router.HandleFunc(printer.CameraPath, d.handleCamera).Methods(http.MethodGet)
	return router
}

func (d *Device) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		d.logger.Error().Err(err).Msg("Failed to encode auth reply")
	}
}

// verifyIdentity checks the client_id/client_secret pair on a request
func (d *Device) verifyIdentity(r *http.Request) bool {
	if r.URL.Query().Get("client_id") != d.opts.Identity.ClientID {
		return false
	}
	ok, err := d.verifier.Verify(r.URL.Query().Get("client_secret"), d.secretHash)
	if err != nil {
		d.logger.Error().Err(err).Msg("Secret verification failed")
		return false
	}
	return ok
}

// handleAuth implements all legs of the authorization flow, dispatched on
// response_type the way the firmware does
func (d *Device) handleAuth(w http.ResponseWriter, r *http.Request) {
	responseType := r.URL.Query().Get("response_type")

	// Bare /auth is the liveness probe; any status field marks a device
	if responseType == "" {
		d.writeJSON(w, map[string]string{"status": "idle"})
		return
	}

	if !d.verifyIdentity(r) {
		d.writeJSON(w, map[string]string{"status": "denied"})
		return
	}

	switch responseType {
	case "code":
		d.handlePairingRequest(w, r)
	case "answer":
		d.handleAnswerPoll(w, r)
	case "token":
		d.handleTokenMint(w, r)
	default:
		d.writeJSON(w, map[string]string{"status": "unknown_response_type"})
	}
}

func (d *Device) handlePairingRequest(w http.ResponseWriter, r *http.Request) {
	p := &pairing{username: r.URL.Query().Get("username")}
	code := uuid.New().String()
	answerCode := uuid.New().String()

	d.mu.Lock()
	d.pairings.Add(answerCode, p)
	d.mu.Unlock()

	d.logger.Info().Str("username", p.username).Msg("Pairing requested")
	d.writeJSON(w, map[string]string{"code": code, "answer_code": answerCode})
}

func (d *Device) handleAnswerPoll(w http.ResponseWriter, r *http.Request) {
	answerCode := r.URL.Query().Get("answer_code")

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pairings.Get(answerCode)
	if !ok {
		d.writeJSON(w, map[string]string{"answer": "unknown"})
		return
	}

	p.polls++
	if p.polls < d.opts.AcceptAfter {
		d.writeJSON(w, map[string]string{"answer": "pending"})
		return
	}

	if p.authCode == "" {
		p.authCode = uuid.New().String()
		d.authCodes.Add(p.authCode, p.username)
		d.logger.Info().Str("username", p.username).Int("polls", p.polls).Msg("Pairing accepted")
	}
	d.writeJSON(w, map[string]string{"answer": "accepted", "code": p.authCode})
}

func (d *Device) handleTokenMint(w http.ResponseWriter, r *http.Request) {
	authCode := r.URL.Query().Get("auth_code")
	tokenContext := printer.TokenContext(r.URL.Query().Get("context"))

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.authCodes.Get(authCode); !ok {
		d.writeJSON(w, map[string]string{"status": "denied"})
		return
	}

	switch tokenContext {
	case printer.ContextJSONRPC, printer.ContextPut, printer.ContextCamera:
	default:
		d.writeJSON(w, map[string]string{"status": "bad_context"})
		return
	}

	// Every mint is a fresh single-use token
	token := uuid.New().String()
	d.tokens.Add(token, tokenContext)

	d.writeJSON(w, map[string]string{"status": "success", "access_token": token})
}

// consumeToken validates and spends a token. Tokens are single-use: a
// second connection presenting the same token is rejected.
func (d *Device) consumeToken(token string, want printer.TokenContext) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	tokenContext, ok := d.tokens.Get(token)
	if !ok || tokenContext != want {
		return false
	}
	d.tokens.Remove(token)
	return true
}

func (d *Device) handleCamera(w http.ResponseWriter, r *http.Request) {
	frame := d.opts.CameraFrame
	if frame == nil {
		frame = []byte("\xff\xd8\xff\xd9") // minimal JPEG
	}
	w.Header().Set("Content-Type", "image/jpeg")
	if _, err := w.Write(frame); err != nil {
		d.logger.Error().Err(err).Msg("Failed to write camera frame")
	}
}
