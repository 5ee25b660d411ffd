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

package introspect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lanternauth/lantern/internal/audit"
	"github.com/lanternauth/lantern/internal/cache"
	"github.com/lanternauth/lantern/internal/domain"
	"github.com/lanternauth/lantern/internal/signing"
)

// memTokenRepo is a minimal in-memory domain.TokenRepository fake
// sufficient for introspection/revocation tests.
type memTokenRepo struct {
	byAccess  map[string]*domain.Token
	byRefresh map[string]*domain.Token
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{byAccess: map[string]*domain.Token{}, byRefresh: map[string]*domain.Token{}}
}
func (r *memTokenRepo) Create(_ context.Context, t *domain.Token) error {
	r.byAccess[t.AccessToken] = t
	if t.RefreshToken != "" {
		r.byRefresh[t.RefreshToken] = t
	}
	return nil
}
func (r *memTokenRepo) GetByAccessToken(_ context.Context, accessToken string) (*domain.Token, error) {
	return r.byAccess[accessToken], nil
}
func (r *memTokenRepo) GetByRefreshToken(_ context.Context, refreshToken string) (*domain.Token, error) {
	return r.byRefresh[refreshToken], nil
}
func (r *memTokenRepo) Revoke(_ context.Context, accessToken string) (bool, error) {
	t, ok := r.byAccess[accessToken]
	if !ok {
		return false, nil
	}
	delete(r.byAccess, accessToken)
	if t.RefreshToken != "" {
		delete(r.byRefresh, t.RefreshToken)
	}
	return true, nil
}
func (r *memTokenRepo) RevokeByRefreshToken(_ context.Context, refreshToken string) (bool, error) {
	t, ok := r.byRefresh[refreshToken]
	if !ok {
		return false, nil
	}
	delete(r.byRefresh, refreshToken)
	delete(r.byAccess, t.AccessToken)
	return true, nil
}
func (r *memTokenRepo) ConsumeRefreshToken(_ context.Context, refreshToken string) (*domain.Token, bool, error) {
	t, ok := r.byRefresh[refreshToken]
	if !ok {
		return nil, false, nil
	}
	delete(r.byRefresh, refreshToken)
	delete(r.byAccess, t.AccessToken)
	return t, true, nil
}
func (r *memTokenRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

// fakeSigner verifies only tokens it was told about, standing in for
// *signing.Service without exercising RSA.
type fakeSigner struct {
	claims map[string]*signing.Claims
}

func (s *fakeSigner) Verify(token string) (*signing.Claims, error) {
	c, ok := s.claims[token]
	if !ok {
		return nil, errors.New("not a recognized token")
	}
	return c, nil
}

func setupService() (*Service, *memTokenRepo, *fakeSigner, *cache.Memory) {
	tokens := newMemTokenRepo()
	signer := &fakeSigner{claims: map[string]*signing.Claims{}}
	c := cache.NewMemory()
	svc := New(tokens, signer, c, audit.NewSlogLogger())
	return svc, tokens, signer, c
}

// TestPurpose: Validates that a live access token introspects as active with full metadata.
// Scope: Unit Test
// Security: RFC 7662 token introspection
// Expected: Returns {active:true} populated from the stored token row.
func TestService_Introspect_ActiveToken(t *testing.T) {
	svc, tokens, signer, _ := setupService()

	now := time.Now()
	tokens.byAccess["tok-1"] = &domain.Token{
		AccessToken: "tok-1",
		ClientID:    "client-1",
		UserID:      "user-1",
		Scope:       "read write",
		ExpiresAt:   now.Add(30 * time.Minute),
	}
	signer.claims["tok-1"] = &signing.Claims{Subject: "user-1", ClientID: "client-1", Scope: "read write", Type: signing.TypeAccess, IssuedAt: now}

	result := svc.Introspect(context.Background(), "tok-1")
	if !result.Active {
		t.Fatal("expected active token")
	}
	if result.ClientID != "client-1" || result.Sub != "user-1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

// TestPurpose: Validates that an access token past its expiry introspects as inactive, with the
// boundary instant itself (now == expires_at) also counted as expired.
// Scope: Unit Test
// Security: RFC 7662 token lifecycle boundary
// Expected: Returns {active:false}.
func TestService_Introspect_ExpiredAtBoundary(t *testing.T) {
	svc, tokens, signer, _ := setupService()

	now := time.Now()
	tokens.byAccess["tok-1"] = &domain.Token{
		AccessToken: "tok-1",
		ClientID:    "client-1",
		UserID:      "user-1",
		ExpiresAt:   now,
	}
	signer.claims["tok-1"] = &signing.Claims{Subject: "user-1", ClientID: "client-1", Type: signing.TypeAccess, IssuedAt: now}
	svc.WithClock(func() time.Time { return now })

	result := svc.Introspect(context.Background(), "tok-1")
	if result.Active {
		t.Fatal("expected token expiring exactly now to be inactive")
	}
}

// TestPurpose: Validates that introspecting an unsigned/unknown token returns inactive.
// Scope: Unit Test
// Security: Signature verification precedes any database lookup
// Expected: Returns {active:false} without touching the token repository.
func TestService_Introspect_UnknownToken(t *testing.T) {
	svc, _, _, _ := setupService()

	result := svc.Introspect(context.Background(), "garbage")
	if result.Active {
		t.Fatal("expected inactive result for an unrecognized token")
	}
}

// TestPurpose: Validates that a second introspection of the same still-valid token hits the cache.
// Scope: Unit Test
// Security: RFC 7662 caching per spec's cache-key convention
// Expected: A cache entry exists after the first call and short-circuits the second.
func TestService_Introspect_CachesActiveResult(t *testing.T) {
	svc, tokens, signer, c := setupService()

	now := time.Now()
	tokens.byAccess["tok-1"] = &domain.Token{
		AccessToken: "tok-1",
		ClientID:    "client-1",
		UserID:      "user-1",
		ExpiresAt:   now.Add(time.Hour),
	}
	signer.claims["tok-1"] = &signing.Claims{Subject: "user-1", ClientID: "client-1", Type: signing.TypeAccess, IssuedAt: now}

	svc.Introspect(context.Background(), "tok-1")
	if _, hit := c.Get(context.Background(), "token:introspect:tok-1"); !hit {
		t.Fatal("expected introspection to populate the cache")
	}

	delete(tokens.byAccess, "tok-1")
	result := svc.Introspect(context.Background(), "tok-1")
	if !result.Active {
		t.Fatal("expected cache hit to report active even after the row was removed")
	}
}

// TestPurpose: Validates that revoking a token deletes the row and its cache entry, and that a
// subsequent introspection reports inactive.
// Scope: Unit Test
// Security: RFC 7009 revocation, cache coherence
// Expected: Revoke succeeds; later introspection of the same token is inactive.
func TestService_Revoke_DeletesRowAndCache(t *testing.T) {
	svc, tokens, signer, c := setupService()

	now := time.Now()
	tokens.byAccess["tok-1"] = &domain.Token{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		ClientID:     "client-1",
		UserID:       "user-1",
		ExpiresAt:    now.Add(time.Hour),
	}
	tokens.byRefresh["ref-1"] = tokens.byAccess["tok-1"]
	signer.claims["tok-1"] = &signing.Claims{Subject: "user-1", ClientID: "client-1", Type: signing.TypeAccess, IssuedAt: now}
	c.Set(context.Background(), "token:introspect:tok-1", "1", 3600)

	if err := svc.Revoke(context.Background(), "tok-1", HintAccessToken); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	if _, ok := tokens.byAccess["tok-1"]; ok {
		t.Error("expected token row to be deleted")
	}
	if _, hit := c.Get(context.Background(), "token:introspect:tok-1"); hit {
		t.Error("expected cache entry to be deleted")
	}

	result := svc.Introspect(context.Background(), "tok-1")
	if result.Active {
		t.Error("expected revoked token to introspect as inactive")
	}
}

// TestPurpose: Validates that revoking a token unknown to the store returns success, per RFC 7009 §2.2.
// Scope: Unit Test
// Security: RFC 7009 revocation of a nonexistent/foreign token
// Expected: Revoke returns no error.
func TestService_Revoke_UnknownTokenIsSuccess(t *testing.T) {
	svc, _, _, _ := setupService()

	if err := svc.Revoke(context.Background(), "never-issued", HintAccessToken); err != nil {
		t.Fatalf("expected success revoking an unknown token, got %v", err)
	}
}

// TestPurpose: Validates that revocation searches by the refresh_token hint first and finds the
// row via its refresh-token index.
// Scope: Unit Test
// Security: RFC 7009 §2.1 type_hint ordering
// Expected: Revoke succeeds and removes both credential forms.
func TestService_Revoke_RefreshTokenHint(t *testing.T) {
	svc, tokens, _, _ := setupService()

	now := time.Now()
	tok := &domain.Token{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		ClientID:     "client-1",
		UserID:       "user-1",
		ExpiresAt:    now.Add(time.Hour),
	}
	tokens.byAccess["tok-1"] = tok
	tokens.byRefresh["ref-1"] = tok

	if err := svc.Revoke(context.Background(), "ref-1", HintRefreshToken); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, ok := tokens.byAccess["tok-1"]; ok {
		t.Error("expected access-token entry to be removed alongside the refresh token")
	}
}

// TestPurpose: Validates that calling revoke twice on the same token is idempotent.
// Scope: Unit Test
// Security: RFC 7009 idempotent revocation
// Expected: Both calls return success.
func TestService_Revoke_Idempotent(t *testing.T) {
	svc, tokens, _, _ := setupService()

	now := time.Now()
	tokens.byAccess["tok-1"] = &domain.Token{AccessToken: "tok-1", ClientID: "c", UserID: "u", ExpiresAt: now.Add(time.Hour)}

	if err := svc.Revoke(context.Background(), "tok-1", HintAccessToken); err != nil {
		t.Fatalf("first revoke failed: %v", err)
	}
	if err := svc.Revoke(context.Background(), "tok-1", HintAccessToken); err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}
}
