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

package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"kiln/internal/logger"
)

// TokenAuthority drives the device-authorization flow on the HTTP channel:
// request a pairing code, poll until the user confirms on the device, then
// mint short-lived access tokens from the resulting authorization code.
//
// Tokens are minted fresh for every command-channel connection and never
// cached. That is the device's one-token-per-connection security model, not
// an optimization opportunity.
type TokenAuthority struct {
	httpClient *http.Client
	host       string
	identity   Identity
	timeouts   Timeouts
	logger     zerolog.Logger
}

// NewTokenAuthority creates a token authority for a device host. The host
// may carry an explicit port; the device default is 80.
func NewTokenAuthority(host string, identity Identity, timeouts Timeouts) *TokenAuthority {
	timeouts = timeouts.withDefaults()

	return &TokenAuthority{
		httpClient: &http.Client{Timeout: timeouts.HTTP},
		host:       host,
		identity:   identity,
		timeouts:   timeouts,
		logger:     logger.Component("auth"),
	}
}

// getAuth performs one GET against /auth and decodes the JSON reply
func (a *TokenAuthority) getAuth(ctx context.Context, query url.Values, out any) error {
	endpoint := fmt.Sprintf("http://%s%s", a.host, AuthPath)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build auth request: %v", ErrConnect, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: auth channel: %v", ErrConnect, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: auth channel returned status %d", ErrConnect, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode auth reply: %v", ErrProtocol, err)
	}

	return nil
}

func (a *TokenAuthority) identityQuery() url.Values {
	return url.Values{
		"client_id":     {a.identity.ClientID},
		"client_secret": {a.identity.ClientSecret},
	}
}

// Probe checks device reachability. Any reply carrying a status field
// identifies a device speaking this protocol.
func (a *TokenAuthority) Probe(ctx context.Context) error {
	var probe probeResponse
	if err := a.getAuth(ctx, nil, &probe); err != nil {
		return err
	}
	if probe.Status == "" {
		return fmt.Errorf("%w: host did not identify as a printer", ErrProtocol)
	}
	return nil
}

// RequestPairing starts the authorization flow and returns the pairing
// handle whose answer code is polled for user consent
func (a *TokenAuthority) RequestPairing(ctx context.Context, username string) (*Pairing, error) {
	query := a.identityQuery()
	query.Set("response_type", "code")
	query.Set("username", username)

	var code codeResponse
	if err := a.getAuth(ctx, query, &code); err != nil {
		return nil, err
	}
	if code.AnswerCode == "" {
		return nil, fmt.Errorf("%w: pairing reply carried no answer code", ErrProtocol)
	}

	a.logger.Info().Str("host", a.host).Msg("Pairing requested, waiting for confirmation on the device")
	return &Pairing{Code: code.Code, AnswerCode: code.AnswerCode}, nil
}

// PollForAcceptance polls the answer leg until the user confirms the
// pairing on the device. The device never pushes a completion event, so
// polling is the only mechanism; the ceiling bounds how long a user gets to
// walk over and press the knob.
func (a *TokenAuthority) PollForAcceptance(ctx context.Context, pairing *Pairing) (AuthorizationCode, error) {
	query := a.identityQuery()
	query.Set("response_type", "answer")
	query.Set("answer_code", pairing.AnswerCode)

	attempt := 0
	code, err := poll(ctx, a.timeouts.AcceptAttempts, a.timeouts.AcceptDelay, func() (AuthorizationCode, bool, error) {
		attempt++

		var answer answerResponse
		if err := a.getAuth(ctx, query, &answer); err != nil {
			return "", false, err
		}

		a.logger.Debug().Int("attempt", attempt).Str("answer", answer.Answer).Msg("Acceptance poll")

		if answer.Answer == "accepted" {
			return AuthorizationCode(answer.Code), true, nil
		}
		return "", false, nil
	})

	if err == errBudgetExhausted {
		return "", fmt.Errorf("%w: no confirmation after %d attempts", ErrAuthTimeout, a.timeouts.AcceptAttempts)
	}
	if err != nil {
		return "", err
	}

	a.logger.Info().Str("host", a.host).Msg("Pairing accepted")
	return code, nil
}

// Authorize runs the full flow: request pairing, then wait for acceptance
func (a *TokenAuthority) Authorize(ctx context.Context, username string) (AuthorizationCode, error) {
	pairing, err := a.RequestPairing(ctx, username)
	if err != nil {
		return "", err
	}
	return a.PollForAcceptance(ctx, pairing)
}

// MintAccessToken exchanges the authorization code for a fresh single-use
// token scoped to tokenContext. A non-success status is a soft failure: the
// caller opens every connection from scratch and retries the mint next time.
func (a *TokenAuthority) MintAccessToken(ctx context.Context, code AuthorizationCode, tokenContext TokenContext) (string, error) {
	query := a.identityQuery()
	query.Set("response_type", "token")
	query.Set("context", string(tokenContext))
	query.Set("auth_code", string(code))

	var token tokenResponse
	if err := a.getAuth(ctx, query, &token); err != nil {
		return "", err
	}

	if token.Status != "success" || token.AccessToken == "" {
		return "", fmt.Errorf("%w: context %s, status %q", ErrAuth, tokenContext, token.Status)
	}

	a.logger.Debug().Str("context", string(tokenContext)).Msg("Access token minted")
	return token.AccessToken, nil
}
