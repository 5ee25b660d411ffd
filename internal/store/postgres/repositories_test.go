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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/lanternauth/lantern/internal/domain"
)

// TestPurpose: Validates that a user can be created and retrieved by ID, username, and email.
// Scope: Database Integration Test
// Security: Identity persistence correctness
// Expected: All three lookups return the same row.
func TestUserRepository_CreateAndGet(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(db)
	ctx := context.Background()

	u := &domain.User{ID: "user-1", Username: "alice", Email: "alice@example.com", PasswordHash: "hash", IsActive: true}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if got, err := repo.GetByID(ctx, "user-1"); err != nil || got.Username != "alice" {
		t.Fatalf("get by id: %v, %+v", err, got)
	}
	if got, err := repo.GetByUsername(ctx, "alice"); err != nil || got.ID != "user-1" {
		t.Fatalf("get by username: %v, %+v", err, got)
	}
	if got, err := repo.GetByEmail(ctx, "alice@example.com"); err != nil || got.ID != "user-1" {
		t.Fatalf("get by email: %v, %+v", err, got)
	}
}

// TestPurpose: Validates that creating a second user with a duplicate username fails.
// Scope: Database Integration Test
// Security: Uniqueness invariant enforcement
// Expected: Returns domain.ErrUserAlreadyExists.
func TestUserRepository_DuplicateUsername(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.User{ID: "user-1", Username: "alice", Email: "a1@example.com", PasswordHash: "h", IsActive: true}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	err := repo.Create(ctx, &domain.User{ID: "user-2", Username: "alice", Email: "a2@example.com", PasswordHash: "h", IsActive: true})
	if err != domain.ErrUserAlreadyExists {
		t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
	}
}

// TestPurpose: Validates that ConsumeIfUnused closes the authorization-code replay race: of two
// concurrent callers, exactly one observes ok=true.
// Scope: Database Integration Test
// Security: Authorization-code replay prevention under concurrency
// Expected: Exactly one of two concurrent ConsumeIfUnused calls succeeds.
func TestCodeRepository_ConsumeIfUnused_ExactlyOneWinner(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	users := NewUserRepository(db)
	clients := NewClientRepository(db)
	codes := NewCodeRepository(db)
	ctx := context.Background()

	if err := users.Create(ctx, &domain.User{ID: "user-1", Username: "alice", Email: "alice@example.com", PasswordHash: "h", IsActive: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := clients.Create(ctx, &domain.Client{
		ID: "client-1", ClientName: "app", RedirectURIs: []string{"https://app.example.com/callback"},
		GrantTypes: []string{domain.GrantAuthorizationCode}, Scopes: []string{"read"}, IsConfidential: true, IsActive: true,
	}); err != nil {
		t.Fatalf("create client: %v", err)
	}

	code := &domain.AuthorizationCode{
		ID: "code-1", Code: "the-code", ClientID: "client-1", UserID: "user-1",
		RedirectURI: "https://app.example.com/callback", ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	if err := codes.Create(ctx, code); err != nil {
		t.Fatalf("create code: %v", err)
	}

	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, ok, err := codes.ConsumeIfUnused(ctx, "the-code")
			if err != nil {
				t.Errorf("consume error: %v", err)
			}
			results <- ok
		}()
	}

	wins := 0
	for i := 0; i < 2; i++ {
		if <-results {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

// TestPurpose: Validates that ConsumeRefreshToken deletes the row it returns, so a second call on
// the same refresh token finds nothing.
// Scope: Database Integration Test
// Security: Refresh-token rotation race closure
// Expected: Second ConsumeRefreshToken call returns ok=false.
func TestTokenRepository_ConsumeRefreshToken_SingleUse(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	users := NewUserRepository(db)
	clients := NewClientRepository(db)
	tokens := NewTokenRepository(db)
	ctx := context.Background()

	if err := users.Create(ctx, &domain.User{ID: "user-1", Username: "alice", Email: "alice@example.com", PasswordHash: "h", IsActive: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := clients.Create(ctx, &domain.Client{
		ID: "client-1", ClientName: "app", RedirectURIs: []string{"https://app.example.com/callback"},
		GrantTypes: []string{domain.GrantPassword}, Scopes: []string{"read"}, IsConfidential: true, IsActive: true,
	}); err != nil {
		t.Fatalf("create client: %v", err)
	}

	tok := &domain.Token{
		ID: "token-1", UserID: "user-1", ClientID: "client-1", AccessToken: "access-1",
		TokenType: "Bearer", ExpiresAt: time.Now().Add(30 * time.Minute), RefreshToken: "refresh-1",
	}
	if err := tokens.Create(ctx, tok); err != nil {
		t.Fatalf("create token: %v", err)
	}

	_, ok, err := tokens.ConsumeRefreshToken(ctx, "refresh-1")
	if err != nil || !ok {
		t.Fatalf("first consume failed: ok=%v err=%v", ok, err)
	}

	_, ok, err = tokens.ConsumeRefreshToken(ctx, "refresh-1")
	if err != nil {
		t.Fatalf("second consume errored: %v", err)
	}
	if ok {
		t.Fatal("expected second consume of the same refresh token to fail")
	}
}
