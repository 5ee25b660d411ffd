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
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/lanternauth/lantern/internal/domain"
	"github.com/lanternauth/lantern/internal/grant"
	"github.com/lanternauth/lantern/internal/introspect"
)

// oauthError is the RFC 6749 §5.2 error body shape.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// httpStatusFor maps a closed grant-engine failure kind to the RFC
// 6749 §5.2 error code and HTTP status the surface is required to
// return. The engine itself never speaks HTTP; this is the one seam
// where that translation happens.
func httpStatusFor(kind grant.FailureKind) (code string, status int) {
	switch kind {
	case grant.ClientAuthFailed:
		return "invalid_client", http.StatusUnauthorized
	case grant.GrantNotAuthorized:
		return "unauthorized_client", http.StatusBadRequest
	case grant.InvalidGrantPayload, grant.PkceFailed, grant.CodeReplay:
		return "invalid_grant", http.StatusBadRequest
	case grant.ScopeRejected:
		return "invalid_scope", http.StatusBadRequest
	case grant.UserAuthFailed:
		return "invalid_grant", http.StatusBadRequest
	case grant.UnsupportedResponseType:
		return "unsupported_response_type", http.StatusBadRequest
	default:
		return "server_error", http.StatusInternalServerError
	}
}

func respondFailure(w http.ResponseWriter, ferr *grant.Failure) {
	code, status := httpStatusFor(ferr.Kind)
	respondJSON(w, status, oauthError{Error: code, ErrorDescription: ferr.Message})
}

// TokenResponse is the RFC 6749 §5.1 success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

func newTokenResponse(t *domain.Token) TokenResponse {
	return TokenResponse{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		ExpiresIn:    int64(t.ExpiresAt.Sub(t.CreatedAt).Seconds()),
		RefreshToken: t.RefreshToken,
		Scope:        t.Scope,
	}
}

// Authorize handles GET /oauth2/authorize (RFC 6749 §4.1.1). It
// validates the request and, if valid, returns a consent payload for
// the caller's consent UI to render; it never mints a code itself.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := grant.AuthorizeRequest{
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		ResponseType:        query.Get("response_type"),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
	}

	client, scope, ferr := h.engine.ValidateAuthorize(r.Context(), req)
	if ferr != nil {
		slog.ErrorContext(r.Context(), "invalid authorize request", "error", ferr.Message, "client_id", req.ClientID)
		respondFailure(w, ferr)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"client_id":             client.ID,
		"client_name":           client.ClientName,
		"redirect_uri":          req.RedirectURI,
		"scope":                 scope,
		"state":                 req.State,
		"code_challenge":        req.CodeChallenge,
		"code_challenge_method": req.CodeChallengeMethod,
	})
}

// ApproveAuthorize handles POST /oauth2/authorize/approve: the
// consent UI's confirmation that user_id has approved the request.
func (h *Handler) ApproveAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	userID := r.Form.Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	req := grant.AuthorizeRequest{
		ClientID:            r.Form.Get("client_id"),
		RedirectURI:         r.Form.Get("redirect_uri"),
		ResponseType:        "code",
		Scope:               r.Form.Get("scope"),
		State:               r.Form.Get("state"),
		CodeChallenge:       r.Form.Get("code_challenge"),
		CodeChallengeMethod: r.Form.Get("code_challenge_method"),
	}

	code, ferr := h.engine.Authorize(r.Context(), req, userID)
	if ferr != nil {
		slog.ErrorContext(r.Context(), "authorize approval failed", "error", ferr.Message, "client_id", req.ClientID)
		if ferr.Kind == grant.ClientAuthFailed {
			respondFailure(w, ferr)
			return
		}
		errCode, _ := httpStatusFor(ferr.Kind)
		http.Redirect(w, r, addQueryParams(req.RedirectURI, map[string]string{
			"error": errCode,
			"state": req.State,
		}), http.StatusFound)
		return
	}

	http.Redirect(w, r, addQueryParams(req.RedirectURI, map[string]string{
		"code":  code.Code,
		"state": req.State,
	}), http.StatusFound)
}

// DenyAuthorize handles POST /oauth2/authorize/deny.
func (h *Handler) DenyAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	redirectURI := r.Form.Get("redirect_uri")
	state := r.Form.Get("state")

	http.Redirect(w, r, addQueryParams(redirectURI, map[string]string{
		"error": "access_denied",
		"state": state,
	}), http.StatusFound)
}

// Token handles POST /oauth2/token, dispatching to the grant engine by
// grant_type (RFC 6749 §4, §6).
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_request", ErrorDescription: "malformed form body"})
		return
	}

	clientID, clientSecret := clientCredentialsFromRequest(r)
	grantType := r.Form.Get("grant_type")

	var token *domain.Token
	var ferr *grant.Failure

	switch grantType {
	case "password":
		token, ferr = h.engine.PasswordGrant(r.Context(), r.Form.Get("username"), r.Form.Get("password"), clientID, clientSecret, r.Form.Get("scope"))
	case "refresh_token":
		token, ferr = h.engine.RefreshTokenGrant(r.Context(), r.Form.Get("refresh_token"), clientID, clientSecret)
	case "authorization_code":
		token, ferr = h.engine.AuthorizationCodeGrant(r.Context(), r.Form.Get("code"), r.Form.Get("redirect_uri"), clientID, clientSecret, r.Form.Get("code_verifier"))
	case "client_credentials":
		token, ferr = h.engine.ClientCredentialsGrant(r.Context(), clientID, clientSecret, r.Form.Get("scope"))
	default:
		respondJSON(w, http.StatusBadRequest, oauthError{Error: "unsupported_grant_type", ErrorDescription: "unknown grant_type"})
		return
	}

	if ferr != nil {
		slog.ErrorContext(r.Context(), "token request failed", "error", ferr.Message, "grant_type", grantType)
		respondFailure(w, ferr)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	respondJSON(w, http.StatusOK, newTokenResponse(token))
}

// Introspect handles POST /oauth2/introspect (RFC 7662).
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	clientID, clientSecret := clientCredentialsFromRequest(r)
	if _, ferr := h.engine.AuthenticateClient(r.Context(), clientID, clientSecret); ferr != nil {
		respondFailure(w, ferr)
		return
	}

	token := r.Form.Get("token")
	if token == "" {
		respondJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_request", ErrorDescription: "missing token"})
		return
	}

	result := h.introspect.Introspect(r.Context(), token)
	respondJSON(w, http.StatusOK, result)
}

// Revoke handles POST /oauth2/revoke (RFC 7009).
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	clientID, clientSecret := clientCredentialsFromRequest(r)
	if _, ferr := h.engine.AuthenticateClient(r.Context(), clientID, clientSecret); ferr != nil {
		respondFailure(w, ferr)
		return
	}

	token := r.Form.Get("token")
	if token == "" {
		respondJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_request", ErrorDescription: "missing token"})
		return
	}

	hint := introspect.TokenTypeHint(r.Form.Get("token_type_hint"))

	if err := h.introspect.Revoke(r.Context(), token, hint); err != nil {
		slog.ErrorContext(r.Context(), "revoke failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, oauthError{Error: "server_error"})
		return
	}

	// RFC 7009 §2.2: 200 OK regardless of whether the token existed.
	w.WriteHeader(http.StatusOK)
}

// clientCredentialsFromRequest extracts client_id/client_secret from
// form fields, falling back to HTTP Basic auth (RFC 6749 §2.3.1).
func clientCredentialsFromRequest(r *http.Request) (clientID, clientSecret string) {
	clientID = r.Form.Get("client_id")
	clientSecret = r.Form.Get("client_secret")
	if clientID == "" {
		if username, password, ok := r.BasicAuth(); ok {
			clientID = username
			clientSecret = password
		}
	}
	return clientID, clientSecret
}

// addQueryParams appends params (URL-encoded) to rawURL's query string.
func addQueryParams(rawURL string, params map[string]string) string {
	separator := "?"
	if strings.Contains(rawURL, "?") {
		separator = "&"
	}

	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}

	encoded := values.Encode()
	if encoded == "" {
		return rawURL
	}
	return rawURL + separator + encoded
}
