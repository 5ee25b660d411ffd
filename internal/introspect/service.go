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

// Package introspect implements RFC 7662 token introspection and
// RFC 7009 token revocation over the same Token store the grant
// engine writes to.
package introspect

import (
	"context"
	"fmt"
	"time"

	"github.com/lanternauth/lantern/internal/audit"
	"github.com/lanternauth/lantern/internal/cache"
	"github.com/lanternauth/lantern/internal/domain"
	"github.com/lanternauth/lantern/internal/signing"
)

// cacheKeyPrefix namespaces introspection cache entries from any other
// consumer of the shared cache.
const cacheKeyPrefix = "token:introspect:"

// cacheActiveValue is the sole value ever stored under an introspection
// cache key; its presence alone means active, so there is nothing to
// parse back out.
const cacheActiveValue = "1"

// Signer verifies bearer tokens. Satisfied by *signing.Service.
type Signer interface {
	Verify(token string) (*signing.Claims, error)
}

// Result is the RFC 7662 introspection response shape.
type Result struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
}

// inactive is the canonical {"active": false} response, returned for
// every rejection path: no information beyond the boolean ever leaks
// about why a token is not active (RFC 7662 §2.2 permits but does not
// require elaboration, and we elect not to).
var inactive = Result{Active: false}

// Service implements introspection and revocation over a token
// repository, a signing service for stateless signature checks, and
// an introspection cache.
//
// Purpose: Answers "is this bearer token currently usable?" and
// "forget this token" without ever minting new credentials.
// Domain: OAuth2
type Service struct {
	tokens domain.TokenRepository
	signer Signer
	cache  cache.Cache
	audit  audit.Logger
	clock  func() time.Time
}

// New creates an introspection/revocation Service.
func New(tokens domain.TokenRepository, signer Signer, c cache.Cache, auditLogger audit.Logger) *Service {
	return &Service{tokens: tokens, signer: signer, cache: c, audit: auditLogger, clock: time.Now}
}

// WithClock overrides the service's time source, for deterministic
// expiry-boundary tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func cacheKey(token string) string {
	return cacheKeyPrefix + token
}

// Introspect implements RFC 7662 §2.2's decision procedure: a cache
// hit short-circuits to active without re-verifying the signature,
// because an entry is only ever written for a token confirmed active
// and with a TTL bounded by that token's own remaining lifetime.
func (s *Service) Introspect(ctx context.Context, token string) Result {
	if _, hit := s.cache.Get(ctx, cacheKey(token)); hit {
		return Result{Active: true}
	}

	claims, err := s.signer.Verify(token)
	if err != nil {
		return inactive
	}

	row, err := s.tokens.GetByAccessToken(ctx, token)
	if err != nil || row == nil {
		return inactive
	}
	now := s.clock()
	if !now.Before(row.ExpiresAt) {
		return inactive
	}

	if ttl := int64(row.ExpiresAt.Sub(now).Seconds()); ttl > 0 {
		s.cache.Set(ctx, cacheKey(token), cacheActiveValue, ttl)
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIntrospect,
		ActorID:  row.UserID,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{audit.AttrClientID: row.ClientID},
	})

	return Result{
		Active:    true,
		Scope:     row.Scope,
		ClientID:  row.ClientID,
		Username:  claims.Subject,
		TokenType: "Bearer",
		Exp:       row.ExpiresAt.Unix(),
		Iat:       claims.IssuedAt.Unix(),
		Sub:       claims.Subject,
	}
}

// TokenTypeHint mirrors RFC 7009 §2.1's type_hint values.
type TokenTypeHint string

const (
	HintAccessToken  TokenTypeHint = "access_token"
	HintRefreshToken TokenTypeHint = "refresh_token"
)

// Revoke implements RFC 7009. An unknown token is success (§2.2) —
// the caller cannot distinguish "never existed" from "already
// revoked" from "belongs to someone else", which is the point.
func (s *Service) Revoke(ctx context.Context, token string, hint TokenTypeHint) error {
	row, accessMatched, err := s.lookupForRevoke(ctx, token, hint)
	if err != nil {
		return fmt.Errorf("introspect: revoke lookup: %w", err)
	}
	if row == nil {
		return nil
	}

	if accessMatched {
		if _, err := s.tokens.Revoke(ctx, row.AccessToken); err != nil {
			return fmt.Errorf("introspect: revoke by access token: %w", err)
		}
	} else {
		if _, err := s.tokens.RevokeByRefreshToken(ctx, row.RefreshToken); err != nil {
			return fmt.Errorf("introspect: revoke by refresh token: %w", err)
		}
	}

	// Cache invalidation happens only after the DB delete commits, so a
	// concurrent introspect cannot re-populate the cache from the deleted
	// row. A cache hit in the window between the two deletes still
	// reports the token active.
	s.cache.Delete(ctx, cacheKey(row.AccessToken))

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		ActorID:  row.UserID,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{audit.AttrClientID: row.ClientID},
	})
	return nil
}

// lookupForRevoke searches by the hinted token form first, then falls
// back to the other form, per RFC 7009 §2.1. accessMatched tells the
// caller which repository method found the row, since Token has no
// separate identity for its two credential forms.
func (s *Service) lookupForRevoke(ctx context.Context, token string, hint TokenTypeHint) (row *domain.Token, accessMatched bool, err error) {
	tryAccessFirst := hint != HintRefreshToken

	if tryAccessFirst {
		row, err = s.tokens.GetByAccessToken(ctx, token)
		if err != nil {
			return nil, false, err
		}
		if row != nil {
			return row, true, nil
		}
		row, err = s.tokens.GetByRefreshToken(ctx, token)
		if err != nil {
			return nil, false, err
		}
		return row, false, nil
	}

	row, err = s.tokens.GetByRefreshToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if row != nil {
		return row, false, nil
	}
	row, err = s.tokens.GetByAccessToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}
