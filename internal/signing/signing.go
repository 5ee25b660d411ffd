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

// Package signing mints and verifies RS256 bearer tokens.
package signing

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lanternauth/lantern/internal/id"
)

// Claim types distinguish access tokens from refresh tokens minted by
// the same key, so a refresh token can never be replayed as an
// access token or vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrInvalidToken is returned by Verify for any rejection reason: bad
// signature, issuer mismatch, expiry elapsed, or malformed claims. The
// caller never learns which, by design — that distinction is not
// meaningful to an OAuth2 client.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the decoded claim set of a Lantern-issued bearer token.
type Claims struct {
	Subject  string // user_id, or client_id for client_credentials
	ClientID string
	Scope    string
	Type     string
	ID       string // jti, for log correlation
	IssuedAt time.Time
	Expiry   time.Time
}

// Service mints and verifies bearer tokens over an asymmetric RS256
// keypair, loaded once at startup and held read-only.
//
// Purpose: Stateless-introspectable token minting and verification.
// Domain: OAuth2
type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	kid        string
}

// NewService creates a signing service bound to the given keypair and
// issuer string.
func NewService(privateKey *rsa.PrivateKey, issuer string) *Service {
	pub := &privateKey.PublicKey
	nBytes := pub.N.Bytes()
	hash := sha256.Sum256(nBytes)
	kid := base64.RawURLEncoding.EncodeToString(hash[:16])

	return &Service{
		privateKey: privateKey,
		publicKey:  pub,
		issuer:     issuer,
		kid:        kid,
	}
}

// PublicKey returns the service's RSA public key, for exposing a JWKS
// document to resource servers.
func (s *Service) PublicKey() *rsa.PublicKey {
	return s.publicKey
}

func (s *Service) mint(subject, clientID, scope, typ string, lifetime time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(lifetime)

	claims := jwt.MapClaims{
		"iss":    s.issuer,
		"sub":    subject,
		"client_id": clientID,
		"scope":  scope,
		"typ":    typ,
		"jti":    id.New(),
		"iat":    now.Unix(),
		"exp":    expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// CreateAccessToken mints a bearer access token.
func (s *Service) CreateAccessToken(userID, clientID, scope string, lifetime time.Duration) (token string, expiresAt time.Time, err error) {
	return s.mint(userID, clientID, scope, TypeAccess, lifetime)
}

// CreateRefreshToken mints a refresh token.
func (s *Service) CreateRefreshToken(userID, clientID, scope string, lifetime time.Duration) (token string, err error) {
	token, _, err = s.mint(userID, clientID, scope, TypeRefresh, lifetime)
	return token, err
}

func (s *Service) parse(tokenString string, validateExpiry bool) (*Claims, error) {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	if !validateExpiry {
		parserOpts = append(parserOpts, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return s.publicKey, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	issuer, _ := claims.GetIssuer()
	if issuer != s.issuer {
		return nil, ErrInvalidToken
	}

	sub, _ := claims.GetSubject()
	clientID, _ := claims["client_id"].(string)
	scope, _ := claims["scope"].(string)
	typ, _ := claims["typ"].(string)
	jti, _ := claims["jti"].(string)

	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return nil, ErrInvalidToken
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return nil, ErrInvalidToken
	}

	if sub == "" || clientID == "" || typ == "" {
		return nil, ErrInvalidToken
	}

	return &Claims{
		Subject:  sub,
		ClientID: clientID,
		Scope:    scope,
		Type:     typ,
		ID:       jti,
		IssuedAt: issuedAt.Time,
		Expiry:   expiry.Time,
	}, nil
}

// Verify rejects a token on bad signature, issuer mismatch, elapsed
// expiry, or malformed claims, and returns the parsed claim set on
// success.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	return s.parse(tokenString, true)
}

// Decode returns claims without an expiry check; the signature is
// still validated. Used for diagnostics only — never for granting
// access.
func (s *Service) Decode(tokenString string) (*Claims, error) {
	return s.parse(tokenString, false)
}
