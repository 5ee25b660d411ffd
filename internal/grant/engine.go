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

package grant

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/lanternauth/lantern/internal/audit"
	"github.com/lanternauth/lantern/internal/domain"
	"github.com/lanternauth/lantern/internal/id"
	"github.com/lanternauth/lantern/internal/signing"
)

// authCodeEntropyBytes yields 256 bits of entropy once base64-encoded,
// satisfying the code's unguessability invariant.
const authCodeEntropyBytes = 32

// generateAuthorizationCode returns a URL-safe, unguessable code value.
// Panics only if the system CSPRNG is broken.
func generateAuthorizationCode() string {
	buf := make([]byte, authCodeEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("grant: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// PasswordHasher verifies a plaintext secret against a stored hash.
// Satisfied by *password.Hasher; an interface here keeps the engine
// free of a direct dependency on the Argon2 parameter struct.
type PasswordHasher interface {
	Verify(secret, encodedHash string) (bool, error)
}

// Signer mints bearer tokens. Satisfied by *signing.Service.
type Signer interface {
	CreateAccessToken(userID, clientID, scope string, lifetime time.Duration) (token string, expiresAt time.Time, err error)
	CreateRefreshToken(userID, clientID, scope string, lifetime time.Duration) (token string, err error)
	Verify(token string) (*signing.Claims, error)
}

// Clock abstracts "now" so expiry-boundary behavior is deterministic
// under test.
type Clock func() time.Time

// Config holds the grant engine's lifetime policy.
type Config struct {
	AuthCodeLifetime     time.Duration
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration
}

// DefaultConfig returns sensible default lifetimes: 10-minute codes,
// 30-minute access tokens, 30-day refresh tokens.
func DefaultConfig() Config {
	return Config{
		AuthCodeLifetime:     10 * time.Minute,
		AccessTokenLifetime:  30 * time.Minute,
		RefreshTokenLifetime: 30 * 24 * time.Hour,
	}
}

// Engine implements the four RFC 6749 grant flows plus authorization
// code issuance, over injected ports.
//
// Purpose: The sole writer of tokens and authorization codes, and the
// sole reader for verification.
// Domain: OAuth2
type Engine struct {
	users   domain.UserRepository
	clients domain.ClientRepository
	codes   domain.AuthorizationCodeRepository
	tokens  domain.TokenRepository
	hasher  PasswordHasher
	signer  Signer
	audit   audit.Logger
	clock   Clock
	cfg     Config
}

// New creates a grant Engine.
func New(
	users domain.UserRepository,
	clients domain.ClientRepository,
	codes domain.AuthorizationCodeRepository,
	tokens domain.TokenRepository,
	hasher PasswordHasher,
	signer Signer,
	auditLogger audit.Logger,
	cfg Config,
) *Engine {
	return &Engine{
		users:   users,
		clients: clients,
		codes:   codes,
		tokens:  tokens,
		hasher:  hasher,
		signer:  signer,
		audit:   auditLogger,
		clock:   time.Now,
		cfg:     cfg,
	}
}

// WithClock overrides the engine's time source, for deterministic
// expiry tests.
func (e *Engine) WithClock(clock Clock) *Engine {
	e.clock = clock
	return e
}

func effectiveScope(requested string, client *domain.Client) (string, *Failure) {
	if strings.TrimSpace(requested) == "" {
		return client.DefaultScope(), nil
	}
	if !client.AllowedScopes(requested) {
		return "", fail(ScopeRejected, "requested scope exceeds client's allowed scopes")
	}
	return requested, nil
}

func (e *Engine) authenticateClient(ctx context.Context, clientID, clientSecret string) (*domain.Client, *Failure) {
	client, err := e.clients.GetByID(ctx, clientID)
	if err != nil || client == nil {
		return nil, fail(ClientAuthFailed, "invalid client credentials")
	}
	if !client.IsActive {
		return nil, fail(ClientAuthFailed, "client is disabled")
	}

	if client.ClientSecretHash == "" {
		// Public client: authenticated by possession of client_id alone.
		return client, nil
	}

	ok, err := e.hasher.Verify(clientSecret, client.ClientSecretHash)
	if err != nil || !ok {
		return nil, fail(ClientAuthFailed, "invalid client credentials")
	}
	return client, nil
}

// AuthenticateClient verifies a client_id/client_secret pair the same
// way every grant flow does, for transport-layer endpoints (introspect,
// revoke) that must authenticate a client without running a grant.
func (e *Engine) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (*domain.Client, *Failure) {
	return e.authenticateClient(ctx, clientID, clientSecret)
}

func (e *Engine) requireGrant(client *domain.Client, grantType string) *Failure {
	if !client.HasGrantType(grantType) {
		return fail(GrantNotAuthorized, "client is not authorized for this grant type")
	}
	return nil
}

func (e *Engine) issueTokenPair(ctx context.Context, userID string, client *domain.Client, scope string, withRefresh bool) (*domain.Token, *Failure) {
	accessToken, expiresAt, err := e.signer.CreateAccessToken(userID, client.ID, scope, e.cfg.AccessTokenLifetime)
	if err != nil {
		return nil, fail(InternalFailure, "failed to mint access token")
	}

	token := &domain.Token{
		ID:          id.New(),
		UserID:      userID,
		ClientID:    client.ID,
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Scope:       scope,
		ExpiresAt:   expiresAt,
		CreatedAt:   e.clock(),
	}

	if withRefresh {
		refreshToken, err := e.signer.CreateRefreshToken(userID, client.ID, scope, e.cfg.RefreshTokenLifetime)
		if err != nil {
			return nil, fail(InternalFailure, "failed to mint refresh token")
		}
		token.RefreshToken = refreshToken
	}

	if err := e.tokens.Create(ctx, token); err != nil {
		return nil, fail(InternalFailure, "failed to persist token")
	}

	e.audit.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  userID,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{
			audit.AttrClientID: client.ID,
			audit.AttrScope:    scope,
		},
	})

	return token, nil
}

// PasswordGrant implements the password grant (RFC 6749 §4.3).
func (e *Engine) PasswordGrant(ctx context.Context, username, plaintextPassword, clientID, clientSecret, requestedScope string) (*domain.Token, *Failure) {
	client, ferr := e.authenticateClient(ctx, clientID, clientSecret)
	if ferr != nil {
		return nil, ferr
	}
	if !client.IsConfidential {
		return nil, fail(GrantNotAuthorized, "password grant requires a confidential client")
	}
	if ferr := e.requireGrant(client, domain.GrantPassword); ferr != nil {
		return nil, ferr
	}

	user, err := e.users.GetByUsername(ctx, username)
	if err != nil || user == nil || !user.IsActive {
		return nil, fail(UserAuthFailed, "invalid resource owner credentials")
	}

	ok, err := e.hasher.Verify(plaintextPassword, user.PasswordHash)
	if err != nil || !ok {
		return nil, fail(UserAuthFailed, "invalid resource owner credentials")
	}

	scope, ferr := effectiveScope(requestedScope, client)
	if ferr != nil {
		return nil, ferr
	}

	return e.issueTokenPair(ctx, user.ID, client, scope, true)
}

// RefreshTokenGrant implements the refresh_token grant (RFC 6749 §6).
// The old token row is deleted before the replacement is minted,
// making the refresh token single-use.
func (e *Engine) RefreshTokenGrant(ctx context.Context, refreshToken, clientID, clientSecret string) (*domain.Token, *Failure) {
	client, ferr := e.authenticateClient(ctx, clientID, clientSecret)
	if ferr != nil {
		return nil, ferr
	}
	if ferr := e.requireGrant(client, domain.GrantRefreshToken); ferr != nil {
		return nil, ferr
	}

	claims, err := e.signer.Verify(refreshToken)
	if err != nil || claims.Type != signing.TypeRefresh {
		return nil, fail(InvalidGrantPayload, "invalid refresh token")
	}

	old, ok, err := e.tokens.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fail(InternalFailure, "failed to rotate refresh token")
	}
	if !ok || old == nil {
		return nil, fail(InvalidGrantPayload, "refresh token not found or already rotated")
	}
	if old.ClientID != client.ID {
		return nil, fail(InvalidGrantPayload, "refresh token was not issued to this client")
	}

	return e.issueTokenPair(ctx, claims.Subject, client, claims.Scope, true)
}

// AuthorizeRequest carries the parameters of a validated `/authorize`
// request, as parsed by the HTTP surface after the upstream session
// layer establishes userID.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidateAuthorize runs every RFC 6749 §4.1.1 check on an
// authorization request without issuing a code, so the consent screen
// can be rendered (or the request rejected) before the resource owner
// has acted.
func (e *Engine) ValidateAuthorize(ctx context.Context, req AuthorizeRequest) (*domain.Client, string, *Failure) {
	if req.ResponseType != "code" {
		return nil, "", fail(UnsupportedResponseType, "unsupported response_type")
	}

	client, err := e.clients.GetByID(ctx, req.ClientID)
	if err != nil || client == nil || !client.IsActive {
		return nil, "", fail(ClientAuthFailed, "invalid client_id")
	}

	if !client.HasRedirectURI(req.RedirectURI) {
		return nil, "", fail(InvalidGrantPayload, "redirect_uri not registered for this client")
	}

	if ferr := e.requireGrant(client, domain.GrantAuthorizationCode); ferr != nil {
		return nil, "", ferr
	}

	if req.CodeChallenge != "" {
		if req.CodeChallengeMethod != domain.PKCEMethodS256 && req.CodeChallengeMethod != domain.PKCEMethodPlain {
			return nil, "", fail(InvalidGrantPayload, "unsupported code_challenge_method")
		}
	}

	scope, ferr := effectiveScope(req.Scope, client)
	if ferr != nil {
		return nil, "", ferr
	}

	return client, scope, nil
}

// Authorize validates an authorization request and, on success,
// issues and persists a one-time authorization code (RFC 6749 §4.1.1–4.1.2).
func (e *Engine) Authorize(ctx context.Context, req AuthorizeRequest, userID string) (*domain.AuthorizationCode, *Failure) {
	client, scope, ferr := e.ValidateAuthorize(ctx, req)
	if ferr != nil {
		return nil, ferr
	}

	code := &domain.AuthorizationCode{
		ID:                  id.New(),
		Code:                generateAuthorizationCode(),
		ClientID:            client.ID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scope:               scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ExpiresAt:           e.clock().Add(e.cfg.AuthCodeLifetime),
		CreatedAt:           e.clock(),
	}

	if err := e.codes.Create(ctx, code); err != nil {
		return nil, fail(InternalFailure, "failed to persist authorization code")
	}

	e.audit.Log(ctx, audit.Event{
		Type:     audit.TypeCodeIssued,
		ActorID:  userID,
		Resource: audit.ResourceCode,
		Metadata: map[string]any{audit.AttrClientID: client.ID},
	})

	return code, nil
}

// AuthorizationCodeGrant redeems a code for a token pair (RFC 6749
// §4.1.3, RFC 7636 §4.6 for PKCE).
func (e *Engine) AuthorizationCodeGrant(ctx context.Context, rawCode, redirectURI, clientID, clientSecret, codeVerifier string) (*domain.Token, *Failure) {
	client, ferr := e.authenticateClient(ctx, clientID, clientSecret)
	if ferr != nil {
		return nil, ferr
	}
	if ferr := e.requireGrant(client, domain.GrantAuthorizationCode); ferr != nil {
		return nil, ferr
	}

	code, err := e.codes.GetByCode(ctx, rawCode)
	if err != nil || code == nil {
		return nil, fail(InvalidGrantPayload, "authorization code not found")
	}

	if code.IsUsed || code.IsExpired(e.clock()) {
		// Replay-defense cleanup: a stale or already-redeemed code is
		// deleted outright so it can never be looked up again.
		_ = e.codes.Delete(ctx, rawCode)
		e.audit.Log(ctx, audit.Event{
			Type:     audit.TypeCodeReplayed,
			ActorID:  code.UserID,
			Resource: audit.ResourceCode,
			Metadata: map[string]any{audit.AttrClientID: client.ID},
		})
		return nil, fail(CodeReplay, "authorization code already used or expired")
	}

	if code.ClientID != client.ID {
		return nil, fail(InvalidGrantPayload, "client_id mismatch")
	}
	if code.RedirectURI != redirectURI {
		return nil, fail(InvalidGrantPayload, "redirect_uri mismatch")
	}

	if code.CodeChallenge != "" {
		if !verifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, codeVerifier) {
			return nil, fail(PkceFailed, "code_verifier does not match code_challenge")
		}
	}

	consumed, ok, err := e.codes.ConsumeIfUnused(ctx, rawCode)
	if err != nil {
		return nil, fail(InternalFailure, "failed to mark authorization code used")
	}
	if !ok || consumed == nil {
		// Lost the race to a concurrent redemption.
		return nil, fail(CodeReplay, "authorization code already used")
	}
	_ = e.codes.Delete(ctx, rawCode)

	e.audit.Log(ctx, audit.Event{
		Type:     audit.TypeCodeRedeemed,
		ActorID:  consumed.UserID,
		Resource: audit.ResourceCode,
		Metadata: map[string]any{audit.AttrClientID: client.ID},
	})

	return e.issueTokenPair(ctx, consumed.UserID, client, consumed.Scope, true)
}

// ClientCredentialsGrant implements the client_credentials grant
// (RFC 6749 §4.4). Only confidential clients may use it; no refresh
// token is issued, and the stored token's UserID is the client's own
// ID.
func (e *Engine) ClientCredentialsGrant(ctx context.Context, clientID, clientSecret, requestedScope string) (*domain.Token, *Failure) {
	client, ferr := e.authenticateClient(ctx, clientID, clientSecret)
	if ferr != nil {
		return nil, ferr
	}
	if !client.IsConfidential {
		return nil, fail(GrantNotAuthorized, "client_credentials requires a confidential client")
	}
	if ferr := e.requireGrant(client, domain.GrantClientCredentials); ferr != nil {
		return nil, ferr
	}

	scope, ferr := effectiveScope(requestedScope, client)
	if ferr != nil {
		return nil, ferr
	}

	return e.issueTokenPair(ctx, client.ID, client, scope, false)
}
