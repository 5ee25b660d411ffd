// Copyright 2026 The OpenTrusty Authors
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

// Package password hashes and verifies user passwords and client
// secrets with Argon2id.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// maxInputBytes bounds the secret accepted by Hash/Verify. Argon2id
// itself has no practical length limit, but truncating consistently
// on both paths keeps hashing cost bounded against adversarial input
// without changing verification semantics for any realistic
// credential.
const maxInputBytes = 1024

// Hasher hashes and verifies passwords and client secrets using
// Argon2id.
//
// Purpose: The single memory-hard KDF used for both user passwords
// and client secrets.
// Domain: OAuth2
// Invariants: Memory, Iterations, and Parallelism must be tuned for
// the deployment's hardware budget.
type Hasher struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// NewHasher creates a new Argon2id hasher.
func NewHasher(memory, iterations uint32, parallelism uint8, saltLength, keyLength uint32) *Hasher {
	return &Hasher{
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: parallelism,
		SaltLength:  saltLength,
		KeyLength:   keyLength,
	}
}

func truncate(secret string) []byte {
	b := []byte(secret)
	if len(b) > maxInputBytes {
		b = b[:maxInputBytes]
	}
	return b
}

// Hash hashes secret using Argon2id with a fresh random salt.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	sum := argon2.IDKey(truncate(secret), salt, h.Iterations, h.Memory, h.Parallelism, h.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.Memory,
		h.Iterations,
		h.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify checks secret against an encoded hash produced by Hash, in
// constant time with respect to the stored digest. Truncation is
// applied identically to the Hash path so that a secret longer than
// maxInputBytes verifies the same way every time.
func (h *Hasher) Verify(secret, encodedHash string) (bool, error) {
	// encodedHash looks like $argon2id$v=19$m=65536,t=3,p=4$<salt>$<sum>.
	// fmt.Sscanf can't parse this: its %s verb is bounded only by
	// whitespace or EOF, never by a following literal byte, so two
	// consecutive $%s verbs can never split apart. Split on the
	// delimiter instead.
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return false, fmt.Errorf("invalid hash format")
	}

	var version int
	var memory, iterations uint32
	var parallelism uint8

	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("invalid hash format: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("invalid hash format: %w", err)
	}
	saltB64, sumB64 := parts[4], parts[5]

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(sumB64)
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	actual := argon2.IDKey(truncate(secret), salt, iterations, memory, parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}
