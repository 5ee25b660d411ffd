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

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/lanternauth/lantern/internal/audit"
	"github.com/lanternauth/lantern/internal/cache"
	"github.com/lanternauth/lantern/internal/domain"
	"github.com/lanternauth/lantern/internal/grant"
	"github.com/lanternauth/lantern/internal/id"
	"github.com/lanternauth/lantern/internal/introspect"
	"github.com/lanternauth/lantern/internal/password"
	"github.com/lanternauth/lantern/internal/signing"
)

// fakeClientRepo is an in-memory domain.ClientRepository.
type fakeClientRepo struct {
	byID map[string]*domain.Client
}

func newFakeClientRepo() *fakeClientRepo { return &fakeClientRepo{byID: map[string]*domain.Client{}} }

func (r *fakeClientRepo) Create(_ context.Context, c *domain.Client) error {
	r.byID[c.ID] = c
	return nil
}
func (r *fakeClientRepo) GetByID(_ context.Context, id string) (*domain.Client, error) {
	if c, ok := r.byID[id]; ok {
		return c, nil
	}
	return nil, domain.ErrClientNotFound
}
func (r *fakeClientRepo) Update(_ context.Context, c *domain.Client) error {
	r.byID[c.ID] = c
	return nil
}
func (r *fakeClientRepo) Delete(_ context.Context, id string) error {
	delete(r.byID, id)
	return nil
}
func (r *fakeClientRepo) List(_ context.Context) ([]*domain.Client, error) {
	var out []*domain.Client
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out, nil
}

// fakeUserRepo is an in-memory domain.UserRepository. None of the
// handler tests exercise the password grant, so it stays empty.
type fakeUserRepo struct{}

func (r *fakeUserRepo) Create(_ context.Context, _ *domain.User) error { return nil }
func (r *fakeUserRepo) GetByID(_ context.Context, _ string) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}
func (r *fakeUserRepo) GetByUsername(_ context.Context, _ string) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}
func (r *fakeUserRepo) GetByEmail(_ context.Context, _ string) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}
func (r *fakeUserRepo) Update(_ context.Context, _ *domain.User) error { return nil }
func (r *fakeUserRepo) Delete(_ context.Context, _ string) error      { return nil }

// fakeCodeRepo is an in-memory domain.AuthorizationCodeRepository.
type fakeCodeRepo struct {
	byCode map[string]*domain.AuthorizationCode
}

func newFakeCodeRepo() *fakeCodeRepo {
	return &fakeCodeRepo{byCode: map[string]*domain.AuthorizationCode{}}
}

func (r *fakeCodeRepo) Create(_ context.Context, c *domain.AuthorizationCode) error {
	r.byCode[c.Code] = c
	return nil
}
func (r *fakeCodeRepo) GetByCode(_ context.Context, code string) (*domain.AuthorizationCode, error) {
	if c, ok := r.byCode[code]; ok {
		return c, nil
	}
	return nil, domain.ErrCodeNotFound
}
func (r *fakeCodeRepo) ConsumeIfUnused(_ context.Context, code string) (*domain.AuthorizationCode, bool, error) {
	c, ok := r.byCode[code]
	if !ok || c.IsUsed {
		return nil, false, nil
	}
	c.IsUsed = true
	return c, true, nil
}
func (r *fakeCodeRepo) Delete(_ context.Context, code string) error {
	delete(r.byCode, code)
	return nil
}
func (r *fakeCodeRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

// fakeTokenRepo is an in-memory domain.TokenRepository.
type fakeTokenRepo struct {
	byAccess  map[string]*domain.Token
	byRefresh map[string]*domain.Token
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{byAccess: map[string]*domain.Token{}, byRefresh: map[string]*domain.Token{}}
}

func (r *fakeTokenRepo) Create(_ context.Context, t *domain.Token) error {
	r.byAccess[t.AccessToken] = t
	if t.RefreshToken != "" {
		r.byRefresh[t.RefreshToken] = t
	}
	return nil
}
func (r *fakeTokenRepo) GetByAccessToken(_ context.Context, accessToken string) (*domain.Token, error) {
	return r.byAccess[accessToken], nil
}
func (r *fakeTokenRepo) GetByRefreshToken(_ context.Context, refreshToken string) (*domain.Token, error) {
	return r.byRefresh[refreshToken], nil
}
func (r *fakeTokenRepo) Revoke(_ context.Context, accessToken string) (bool, error) {
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
func (r *fakeTokenRepo) RevokeByRefreshToken(_ context.Context, refreshToken string) (bool, error) {
	t, ok := r.byRefresh[refreshToken]
	if !ok {
		return false, nil
	}
	delete(r.byRefresh, refreshToken)
	delete(r.byAccess, t.AccessToken)
	return true, nil
}
func (r *fakeTokenRepo) ConsumeRefreshToken(_ context.Context, refreshToken string) (*domain.Token, bool, error) {
	t, ok := r.byRefresh[refreshToken]
	if !ok {
		return nil, false, nil
	}
	delete(r.byRefresh, refreshToken)
	delete(r.byAccess, t.AccessToken)
	return t, true, nil
}
func (r *fakeTokenRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

// testHandler wires a Handler against entirely in-memory fakes, for
// protocol-level assertions that don't need a database.
func testHandler(t *testing.T) (*Handler, *fakeClientRepo) {
	t.Helper()

	key, err := signing.GenerateDevKey()
	if err != nil {
		t.Fatalf("generate dev key: %v", err)
	}
	signer := signing.NewService(key, "https://issuer.example")
	hasher := password.NewHasher(64*1024, 1, 1, 16, 32)

	clients := newFakeClientRepo()
	engine := grant.New(&fakeUserRepo{}, clients, newFakeCodeRepo(), newFakeTokenRepo(), hasher, signer, audit.NewSlogLogger(), grant.DefaultConfig())
	introspectSvc := introspect.New(newFakeTokenRepo(), signer, cache.NewMemory(), audit.NewSlogLogger())

	return NewHandler(engine, introspectSvc, signer, audit.NewSlogLogger(), "https://issuer.example"), clients
}

func mustHashSecret(t *testing.T, secret string) string {
	t.Helper()
	hasher := password.NewHasher(64*1024, 1, 1, 16, 32)
	hash, err := hasher.Hash(secret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	return hash
}

func TestHandler_HealthCheck(t *testing.T) {
	h, _ := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	h.HealthCheck(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestHandler_Metadata(t *testing.T) {
	h, _ := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	w := httptest.NewRecorder()

	h.Metadata(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if body["issuer"] != "https://issuer.example" {
		t.Errorf("expected issuer to be echoed, got %v", body["issuer"])
	}
	if body["token_endpoint"] != "https://issuer.example/oauth2/token" {
		t.Errorf("unexpected token_endpoint: %v", body["token_endpoint"])
	}
}

func TestHandler_JWKS(t *testing.T) {
	h, _ := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/jwks.json", nil)
	w := httptest.NewRecorder()

	h.JWKS(w, req)

	var body struct {
		Keys []map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal jwks: %v", err)
	}
	if len(body.Keys) != 1 {
		t.Fatalf("expected exactly one key, got %d", len(body.Keys))
	}
	if body.Keys[0]["kty"] != "RSA" {
		t.Errorf("expected kty RSA, got %s", body.Keys[0]["kty"])
	}
}

func TestHandler_Token_UnsupportedGrantType(t *testing.T) {
	h, _ := testHandler(t)
	form := url.Values{"grant_type": {"carrier_pigeon"}}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.Token(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body oauthError
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != "unsupported_grant_type" {
		t.Errorf("expected unsupported_grant_type, got %s", body.Error)
	}
}

func TestHandler_Token_ClientCredentials_HappyPath(t *testing.T) {
	h, clients := testHandler(t)

	client := &domain.Client{
		ID:               id.New(),
		ClientName:       "service-a",
		ClientSecretHash: mustHashSecret(t, "s3cret"),
		GrantTypes:       []string{domain.GrantClientCredentials},
		Scopes:           []string{"read", "write"},
		IsConfidential:   true,
		IsActive:         true,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	clients.byID[client.ID] = client

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {client.ID},
		"client_secret": {"s3cret"},
		"scope":         {"read"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.Token(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", w.Code, w.Body.String())
	}
	var resp TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal token response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("missing access_token")
	}
	if resp.RefreshToken != "" {
		t.Error("client_credentials must not issue a refresh token")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("expected token_type Bearer, got %s", resp.TokenType)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected Cache-Control: no-store on token response")
	}
}

func TestHandler_Token_ClientCredentials_BadSecret(t *testing.T) {
	h, clients := testHandler(t)

	client := &domain.Client{
		ID:               id.New(),
		ClientSecretHash: mustHashSecret(t, "s3cret"),
		GrantTypes:       []string{domain.GrantClientCredentials},
		IsConfidential:   true,
		IsActive:         true,
	}
	clients.byID[client.ID] = client

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {client.ID},
		"client_secret": {"wrong"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.Token(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	var body oauthError
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != "invalid_client" {
		t.Errorf("expected invalid_client, got %s", body.Error)
	}
}

func TestHandler_Authorize_UnknownClient(t *testing.T) {
	h, _ := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?client_id=nope&response_type=code&redirect_uri=https://app.example/cb", nil)
	w := httptest.NewRecorder()

	h.Authorize(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHandler_Authorize_ValidRequest(t *testing.T) {
	h, clients := testHandler(t)

	client := &domain.Client{
		ID:             id.New(),
		ClientName:     "web-app",
		RedirectURIs:   []string{"https://app.example/cb"},
		GrantTypes:     []string{domain.GrantAuthorizationCode},
		Scopes:         []string{"profile"},
		IsConfidential: true,
		IsActive:       true,
	}
	clients.byID[client.ID] = client

	target := "/oauth2/authorize?client_id=" + client.ID +
		"&response_type=code&redirect_uri=https://app.example/cb&scope=profile&state=xyz"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()

	h.Authorize(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", w.Code, w.Body.String())
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["client_id"] != client.ID {
		t.Errorf("expected client_id %s, got %v", client.ID, body["client_id"])
	}
	if body["state"] != "xyz" {
		t.Errorf("expected state echoed, got %v", body["state"])
	}
}

func TestHandler_ApproveAuthorize_RedirectsWithCode(t *testing.T) {
	h, clients := testHandler(t)

	client := &domain.Client{
		ID:             id.New(),
		RedirectURIs:   []string{"https://app.example/cb"},
		GrantTypes:     []string{domain.GrantAuthorizationCode},
		Scopes:         []string{"profile"},
		IsConfidential: true,
		IsActive:       true,
	}
	clients.byID[client.ID] = client

	form := url.Values{
		"user_id":       {"user-1"},
		"client_id":     {client.ID},
		"redirect_uri":  {"https://app.example/cb"},
		"scope":         {"profile"},
		"state":         {"xyz"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/authorize/approve", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.ApproveAuthorize(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if loc.Query().Get("code") == "" {
		t.Error("expected a code query parameter on the redirect")
	}
	if loc.Query().Get("state") != "xyz" {
		t.Errorf("expected state preserved, got %s", loc.Query().Get("state"))
	}
}

func TestHandler_DenyAuthorize_RedirectsWithError(t *testing.T) {
	h, _ := testHandler(t)

	form := url.Values{
		"redirect_uri": {"https://app.example/cb"},
		"state":        {"xyz"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/authorize/deny", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.DenyAuthorize(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	loc, _ := url.Parse(w.Header().Get("Location"))
	if loc.Query().Get("error") != "access_denied" {
		t.Errorf("expected access_denied, got %s", loc.Query().Get("error"))
	}
}

func TestHandler_IntrospectAndRevoke_UnknownToken(t *testing.T) {
	h, clients := testHandler(t)

	client := &domain.Client{
		ID:               id.New(),
		ClientSecretHash: mustHashSecret(t, "s3cret"),
		GrantTypes:       []string{domain.GrantClientCredentials},
		Scopes:           []string{"read"},
		IsConfidential:   true,
		IsActive:         true,
	}
	clients.byID[client.ID] = client

	tokenForm := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {client.ID},
		"client_secret": {"s3cret"},
	}
	tokenReq := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(tokenForm.Encode()))
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenW := httptest.NewRecorder()
	h.Token(tokenW, tokenReq)

	var tok TokenResponse
	json.Unmarshal(tokenW.Body.Bytes(), &tok)

	// Introspection over this handler's own cache and token repo won't
	// see the token minted above, since testHandler() gives introspect
	// its own fakeTokenRepo independent of the engine's. Revocation and
	// introspection of an unknown token must still behave per RFC 7009/7662.
	revokeForm := url.Values{
		"client_id":     {client.ID},
		"client_secret": {"s3cret"},
		"token":         {"not-a-real-token"},
	}
	revokeReq := httptest.NewRequest(http.MethodPost, "/oauth2/revoke", strings.NewReader(revokeForm.Encode()))
	revokeReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	revokeW := httptest.NewRecorder()
	h.Revoke(revokeW, revokeReq)

	if revokeW.Code != http.StatusOK {
		t.Fatalf("expected 200 even for an unknown token (RFC 7009 2.2), got %d", revokeW.Code)
	}

	introspectForm := url.Values{
		"client_id":     {client.ID},
		"client_secret": {"s3cret"},
		"token":         {"not-a-real-token"},
	}
	introspectReq := httptest.NewRequest(http.MethodPost, "/oauth2/introspect", strings.NewReader(introspectForm.Encode()))
	introspectReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	introspectW := httptest.NewRecorder()
	h.Introspect(introspectW, introspectReq)

	var result introspect.Result
	json.Unmarshal(introspectW.Body.Bytes(), &result)
	if result.Active {
		t.Error("expected an unknown token to introspect as inactive")
	}
}
