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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lanternauth/lantern/internal/domain"
)

// TokenRepository implements domain.TokenRepository over PostgreSQL.
//
// Purpose: Durable storage of issued bearer credentials, the single
// source of truth for introspection and revocation.
// Domain: OAuth2 (Infrastructure)
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a token repository.
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create persists a newly minted token.
func (r *TokenRepository) Create(ctx context.Context, t *domain.Token) error {
	err := withRetry(ctx, func() error {
		_, err := r.db.pool.Exec(ctx, `
			INSERT INTO tokens (id, user_id, client_id, access_token, token_type, scope, expires_at, refresh_token, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, t.ID, t.UserID, t.ClientID, t.AccessToken, t.TokenType, t.Scope, t.ExpiresAt, nullableString(t.RefreshToken), t.CreatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

const tokenColumns = `id, user_id, client_id, access_token, token_type, scope, expires_at, refresh_token, created_at`

func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var refresh *string
	err := row.Scan(&t.ID, &t.UserID, &t.ClientID, &t.AccessToken, &t.TokenType, &t.Scope, &t.ExpiresAt, &refresh, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if refresh != nil {
		t.RefreshToken = *refresh
	}
	return &t, nil
}

// GetByAccessToken retrieves a token by its access token value.
// Returns nil, nil when absent.
func (r *TokenRepository) GetByAccessToken(ctx context.Context, accessToken string) (*domain.Token, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE access_token = $1`, accessToken)
	t, err := scanToken(row)
	if err != nil {
		return nil, fmt.Errorf("get token by access token: %w", err)
	}
	return t, nil
}

// GetByRefreshToken retrieves a token by its refresh token value.
// Returns nil, nil when absent.
func (r *TokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*domain.Token, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE refresh_token = $1`, refreshToken)
	t, err := scanToken(row)
	if err != nil {
		return nil, fmt.Errorf("get token by refresh token: %w", err)
	}
	return t, nil
}

// Revoke deletes a token row by access token value. Returns false
// (not an error) if no row matched.
func (r *TokenRepository) Revoke(ctx context.Context, accessToken string) (bool, error) {
	var rowsAffected int64
	err := withRetry(ctx, func() error {
		tag, err := r.db.pool.Exec(ctx, `DELETE FROM tokens WHERE access_token = $1`, accessToken)
		if err != nil {
			return err
		}
		rowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("revoke by access token: %w", err)
	}
	return rowsAffected > 0, nil
}

// RevokeByRefreshToken deletes a token row by refresh token value.
// Returns false (not an error) if no row matched.
func (r *TokenRepository) RevokeByRefreshToken(ctx context.Context, refreshToken string) (bool, error) {
	var rowsAffected int64
	err := withRetry(ctx, func() error {
		tag, err := r.db.pool.Exec(ctx, `DELETE FROM tokens WHERE refresh_token = $1`, refreshToken)
		if err != nil {
			return err
		}
		rowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("revoke by refresh token: %w", err)
	}
	return rowsAffected > 0, nil
}

// ConsumeRefreshToken atomically deletes the row owning refreshToken
// and returns it in the same statement, so of any number of
// concurrent rotation attempts exactly one observes a non-nil result.
func (r *TokenRepository) ConsumeRefreshToken(ctx context.Context, refreshToken string) (*domain.Token, bool, error) {
	var consumed *domain.Token
	err := withRetry(ctx, func() error {
		row := r.db.pool.QueryRow(ctx, `
			DELETE FROM tokens WHERE refresh_token = $1
			RETURNING `+tokenColumns, refreshToken)
		t, err := scanToken(row)
		if err != nil {
			return err
		}
		consumed = t
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("consume refresh token: %w", err)
	}
	if consumed == nil {
		return nil, false, nil
	}
	return consumed, true, nil
}

// DeleteExpired removes every token past its expiry.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	err := withRetry(ctx, func() error {
		tag, err := r.db.pool.Exec(ctx, `DELETE FROM tokens WHERE expires_at <= NOW()`)
		if err != nil {
			return err
		}
		rowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return rowsAffected, nil
}
