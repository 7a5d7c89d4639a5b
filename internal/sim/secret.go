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
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// SecretVerifier stores and checks the client secret the way the real
// firmware does: hashed at rest, never compared in plaintext
type SecretVerifier struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// NewSecretVerifier creates a verifier with the firmware's Argon2 settings
func NewSecretVerifier() *SecretVerifier {
	return &SecretVerifier{
		memory:      16 * 1024,
		iterations:  2,
		parallelism: 1,
		saltLength:  16,
		keyLength:   32,
	}
}

// Hash creates an Argon2id hash of the secret
// Format: $argon2id$v=19$m=16384,t=2,p=1$salt$hash
func (v *SecretVerifier) Hash(secret string) (string, error) {
	salt := make([]byte, v.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(secret), salt, v.iterations, v.memory, v.parallelism, v.keyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%x$%x",
		argon2.Version, v.memory, v.iterations, v.parallelism, salt, hash)
	return encoded, nil
}

// Verify checks a secret against an encoded hash
func (v *SecretVerifier) Verify(secret, encoded string) (bool, error) {
	var (
		version     int
		memory      uint32
		iterations  uint32
		parallelism uint8
		salt, hash  []byte
	)

	n, err := fmt.Sscanf(encoded, "$argon2id$v=%d$m=%d,t=%d,p=%d$%x$%x",
		&version, &memory, &iterations, &parallelism, &salt, &hash)
	if err != nil || n != 6 {
		return false, fmt.Errorf("invalid hash format")
	}
	if version != argon2.Version {
		return false, fmt.Errorf("incompatible argon2 version")
	}

	computed := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, v.keyLength)
	return subtle.ConstantTimeCompare(hash, computed) == 1, nil
}
