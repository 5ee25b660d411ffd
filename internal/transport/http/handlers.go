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

// Package http exposes the grant engine and introspection service over
// RFC 6749/7636/7662/7009 HTTP endpoints.
package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lanternauth/lantern/internal/audit"
	"github.com/lanternauth/lantern/internal/grant"
	"github.com/lanternauth/lantern/internal/introspect"
	"github.com/lanternauth/lantern/internal/signing"
)

// Handler holds HTTP handlers and dependencies.
type Handler struct {
	engine      *grant.Engine
	introspect  *introspect.Service
	signer      *signing.Service
	auditLogger audit.Logger
	issuer      string
}

// NewHandler creates a new HTTP handler.
func NewHandler(engine *grant.Engine, introspectSvc *introspect.Service, signer *signing.Service, auditLogger audit.Logger, issuer string) *Handler {
	return &Handler{
		engine:      engine,
		introspect:  introspectSvc,
		signer:      signer,
		auditLogger: auditLogger,
		issuer:      issuer,
	}
}

// NewRouter creates a new HTTP router.
func NewRouter(h *Handler, rateLimiter *RateLimiter, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(CORSMiddleware(corsOrigins))
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)
	r.Get("/.well-known/oauth-authorization-server", h.Metadata)
	r.Get("/jwks.json", h.JWKS)

	r.Route("/oauth2", func(r chi.Router) {
		r.With(RequireUser).Get("/authorize", h.Authorize)
		r.Post("/authorize/approve", h.ApproveAuthorize)
		r.Post("/authorize/deny", h.DenyAuthorize)
		r.Post("/token", h.Token)
		r.Post("/introspect", h.Introspect)
		r.Post("/revoke", h.Revoke)
	})

	return r
}

// HealthCheck returns the health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "lantern",
	})
}

// Metadata serves RFC 8414 authorization server metadata.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"issuer":                                h.issuer,
		"authorization_endpoint":                h.issuer + "/oauth2/authorize",
		"token_endpoint":                         h.issuer + "/oauth2/token",
		"introspection_endpoint":                 h.issuer + "/oauth2/introspect",
		"revocation_endpoint":                    h.issuer + "/oauth2/revoke",
		"jwks_uri":                               h.issuer + "/jwks.json",
		"response_types_supported":               []string{"code"},
		"grant_types_supported":                  []string{"password", "refresh_token", "authorization_code", "client_credentials"},
		"token_endpoint_auth_methods_supported":  []string{"client_secret_basic", "client_secret_post", "none"},
		"code_challenge_methods_supported":       []string{"S256", "plain"},
		"id_token_signing_alg_values_supported":  []string{"RS256"},
	})
}

// JWKS serves the signing service's public key as a JSON Web Key Set,
// so a resource server can verify bearer tokens without calling
// /oauth2/introspect.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	pub := h.signer.PublicKey()
	respondJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{
			{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(encodeRSAExponent(pub.E)),
			},
		},
	})
}

// encodeRSAExponent returns the minimal big-endian byte encoding of a
// public RSA exponent (conventionally 65537), as required for the "e"
// member of a JWK.
func encodeRSAExponent(e int) []byte {
	if e == 0 {
		return []byte{0}
	}
	var b []byte
	for e > 0 {
		b = append([]byte{byte(e & 0xff)}, b...)
		e >>= 8
	}
	return b
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
