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

package domain

import (
	"context"
	"time"
)

// PKCE transform methods (RFC 7636 §4.3).
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// AuthorizationCode represents a short-lived, one-time artifact
// delivered via redirect during the authorization_code grant.
//
// Purpose: Binds a consent decision to a single future token exchange.
// Domain: OAuth2
// Invariants: Code is unguessable (≥256 bits of entropy). At most one
// successful redemption ever succeeds; once IsUsed or past ExpiresAt,
// the code can never yield a token again.
type AuthorizationCode struct {
	ID                  string
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	IsUsed              bool
	CreatedAt           time.Time
}

// IsExpired reports whether the code has passed its expiry instant.
// now == ExpiresAt counts as expired, matching the access-token
// boundary rule used for introspection.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AuthorizationCodeRepository defines the interface for authorization
// code persistence.
//
// Purpose: Abstraction for managing short-lived authorization codes.
// Domain: OAuth2
type AuthorizationCodeRepository interface {
	// Create persists a new authorization code.
	Create(ctx context.Context, code *AuthorizationCode) error

	// GetByCode retrieves a code by its opaque value. Returns
	// ErrCodeNotFound if absent.
	GetByCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// ConsumeIfUnused atomically marks the code used and returns it,
	// but only if it was not already used. If the code was already
	// used (or does not exist), ok is false and no mutation occurs.
	// This is the single round trip that closes the replay race
	// described for the authorization-code grant.
	ConsumeIfUnused(ctx context.Context, code string) (c *AuthorizationCode, ok bool, err error)

	// Delete removes a code row outright. Used both for the
	// replay-defense cleanup of expired/used codes and for the
	// permanent invalidation step after a successful redemption.
	Delete(ctx context.Context, code string) error

	// DeleteExpired removes every code past its expiry and returns
	// the number of rows removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
