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

// Identity is the static client id/secret pair presented on the auth channel
type Identity struct {
	ClientID     string
	ClientSecret string
}

// DefaultIdentity returns the identity baked into the vendor tooling
func DefaultIdentity() Identity {
	return Identity{ClientID: ClientID, ClientSecret: ClientSecret}
}

// AuthorizationCode is the long-lived credential obtained once per
// user-consent cycle. It is required to mint any access token and is
// invalidated only by re-running the pairing flow.
type AuthorizationCode string

// Pairing holds the codes returned by the response_type=code leg. The
// AnswerCode is what gets polled; Code is informational.
type Pairing struct {
	Code       string
	AnswerCode string
}

// RPCRequest is the request frame written on the command channel. Params
// must serialize as an explicit JSON null when absent, which the any field
// does on its own.
type RPCRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Method  RPCMethod `json:"method"`
	Params  any       `json:"params"`
}

// NewRPCRequest builds a request frame with the fixed id sentinel
func NewRPCRequest(method RPCMethod, params any) RPCRequest {
	return RPCRequest{
		JSONRPC: "2.0",
		ID:      requestID,
		Method:  method,
		Params:  params,
	}
}

// RPCResponse is a parsed response document. The device does not follow the
// JSON-RPC result/error envelope, so responses stay generic.
type RPCResponse map[string]any

// Echoed reports the device's "still processing" convention: a response
// carrying a method field means the prior command has not completed and the
// identical call should be re-issued.
func (r RPCResponse) Echoed() bool {
	_, ok := r["method"]
	return ok
}

// String returns a string field from the response
func (r RPCResponse) String(key string) (string, bool) {
	v, ok := r[key].(string)
	return v, ok
}

// Number returns a numeric field from the response. encoding/json decodes
// untyped numbers as float64.
func (r RPCResponse) Number(key string) (float64, bool) {
	v, ok := r[key].(float64)
	return v, ok
}

// Frame is a single camera capture, exposed both raw and base64-encoded
type Frame struct {
	Bytes  []byte
	Base64 string
}

// Payloads returned by the auth channel

type codeResponse struct {
	Code       string `json:"code"`
	AnswerCode string `json:"answer_code"`
}

type answerResponse struct {
	Answer string `json:"answer"`
	Code   string `json:"code"`
}

type tokenResponse struct {
	Status      string `json:"status"`
	AccessToken string `json:"access_token"`
}

type probeResponse struct {
	Status string `json:"status"`
}
