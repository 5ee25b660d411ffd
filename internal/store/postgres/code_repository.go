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

// CodeRepository implements domain.AuthorizationCodeRepository over
// PostgreSQL.
//
// Purpose: Durable storage of short-lived, one-time authorization codes.
// Domain: OAuth2 (Infrastructure)
type CodeRepository struct {
	db *DB
}

// NewCodeRepository creates an authorization code repository.
func NewCodeRepository(db *DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// Create persists a new authorization code.
func (r *CodeRepository) Create(ctx context.Context, c *domain.AuthorizationCode) error {
	err := withRetry(ctx, func() error {
		_, err := r.db.pool.Exec(ctx, `
			INSERT INTO authorization_codes (
				id, code, client_id, user_id, redirect_uri, scope, state,
				code_challenge, code_challenge_method, expires_at, is_used, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, c.ID, c.Code, c.ClientID, c.UserID, c.RedirectURI, c.Scope, nullableString(c.State),
			nullableString(c.CodeChallenge), nullableString(c.CodeChallengeMethod), c.ExpiresAt, c.IsUsed, c.CreatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert authorization code: %w", err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanCode(row pgx.Row) (*domain.AuthorizationCode, error) {
	var c domain.AuthorizationCode
	var state, challenge, method *string
	err := row.Scan(
		&c.ID, &c.Code, &c.ClientID, &c.UserID, &c.RedirectURI, &c.Scope, &state,
		&challenge, &method, &c.ExpiresAt, &c.IsUsed, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCodeNotFound
		}
		return nil, err
	}
	if state != nil {
		c.State = *state
	}
	if challenge != nil {
		c.CodeChallenge = *challenge
	}
	if method != nil {
		c.CodeChallengeMethod = *method
	}
	return &c, nil
}

const codeColumns = `id, code, client_id, user_id, redirect_uri, scope, state,
			code_challenge, code_challenge_method, expires_at, is_used, created_at`

// GetByCode retrieves a code by its opaque value.
func (r *CodeRepository) GetByCode(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+codeColumns+` FROM authorization_codes WHERE code = $1`, code)
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get code: %w", err)
	}
	return c, nil
}

// ConsumeIfUnused atomically flips is_used and returns the row, but
// only if it was not already used. The WHERE clause and the flip
// happen in a single statement so two concurrent redemptions can
// never both observe a row.
func (r *CodeRepository) ConsumeIfUnused(ctx context.Context, code string) (*domain.AuthorizationCode, bool, error) {
	var consumed *domain.AuthorizationCode
	err := withRetry(ctx, func() error {
		row := r.db.pool.QueryRow(ctx, `
			UPDATE authorization_codes SET is_used = true
			WHERE code = $1 AND is_used = false
			RETURNING `+codeColumns, code)
		c, err := scanCode(row)
		if err != nil {
			return err
		}
		consumed = c
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("consume code: %w", err)
	}
	return consumed, true, nil
}

// Delete removes a code row outright.
func (r *CodeRepository) Delete(ctx context.Context, code string) error {
	err := withRetry(ctx, func() error {
		_, err := r.db.pool.Exec(ctx, `DELETE FROM authorization_codes WHERE code = $1`, code)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

// DeleteExpired removes every code past its expiry.
func (r *CodeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	err := withRetry(ctx, func() error {
		tag, err := r.db.pool.Exec(ctx, `DELETE FROM authorization_codes WHERE expires_at <= NOW()`)
		if err != nil {
			return err
		}
		rowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired codes: %w", err)
	}
	return rowsAffected, nil
}
