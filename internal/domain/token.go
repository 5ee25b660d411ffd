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

// Token represents an issued access/refresh token pair. A
// client_credentials grant produces a Token with no RefreshToken.
//
// Purpose: The durable record backing introspection and revocation.
// Domain: OAuth2
// Invariants: AccessToken is unique; RefreshToken, when present, is
// also unique. Deleting a Token row is its only state transition —
// there is no separate "revoked" flag, because a deleted row and a
// revoked token are the same thing to every reader.
type Token struct {
	ID           string
	UserID       string // equals ClientID for the client_credentials grant
	ClientID     string
	AccessToken  string
	TokenType    string // always "Bearer"
	Scope        string
	ExpiresAt    time.Time
	RefreshToken string // empty for client_credentials
	CreatedAt    time.Time
}

// IsExpired reports whether the token has passed its expiry instant.
// now == ExpiresAt counts as expired (RFC 6749 introspection boundary).
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenRepository defines the interface for token persistence.
//
// Purpose: Abstraction for managing issued bearer credentials.
// Domain: OAuth2
type TokenRepository interface {
	// Create persists a newly minted token.
	Create(ctx context.Context, token *Token) error

	// GetByAccessToken retrieves a token by its access token value.
	// Returns nil, nil when absent — lookups on a bearer credential
	// are not exceptional, callers branch on a nil result.
	GetByAccessToken(ctx context.Context, accessToken string) (*Token, error)

	// GetByRefreshToken retrieves a token by its refresh token value.
	// Returns nil, nil when absent.
	GetByRefreshToken(ctx context.Context, refreshToken string) (*Token, error)

	// Revoke deletes a token row by access token value. Returns false
	// (not an error) if no row matched.
	Revoke(ctx context.Context, accessToken string) (bool, error)

	// RevokeByRefreshToken deletes a token row by refresh token value.
	// Returns false (not an error) if no row matched.
	RevokeByRefreshToken(ctx context.Context, refreshToken string) (bool, error)

	// ConsumeRefreshToken atomically deletes the token row owning
	// refreshToken and returns it, so that of any number of
	// concurrent rotation attempts exactly one observes a non-nil
	// result. This closes the refresh-token rotation race.
	ConsumeRefreshToken(ctx context.Context, refreshToken string) (*Token, bool, error)

	// DeleteExpired removes every token past its expiry and returns
	// the number of rows removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
