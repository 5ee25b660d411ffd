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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lanternauth/lantern/internal/domain"
)

// ClientRepository implements domain.ClientRepository over PostgreSQL.
//
// Purpose: Durable storage of registered OAuth2 client applications.
// Domain: OAuth2 (Infrastructure)
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a client repository.
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create persists a new client.
func (r *ClientRepository) Create(ctx context.Context, c *domain.Client) error {
	now := time.Now()
	err := withRetry(ctx, func() error {
		_, err := r.db.pool.Exec(ctx, `
			INSERT INTO clients (
				id, client_name, client_secret_hash, redirect_uris, grant_types,
				scopes, is_confidential, is_active, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, c.ID, c.ClientName, nullableSecret(c.ClientSecretHash), c.RedirectURIs, c.GrantTypes,
			c.Scopes, c.IsConfidential, c.IsActive, now, now)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrClientAlreadyExists
		}
		return fmt.Errorf("insert client: %w", err)
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// nullableSecret converts an empty hash into a SQL NULL, so a public
// client's row carries no secret at all rather than an empty string.
func nullableSecret(hash string) *string {
	if hash == "" {
		return nil
	}
	return &hash
}

func scanClient(row pgx.Row) (*domain.Client, error) {
	var c domain.Client
	var secretHash *string
	err := row.Scan(
		&c.ID, &c.ClientName, &secretHash, &c.RedirectURIs, &c.GrantTypes,
		&c.Scopes, &c.IsConfidential, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrClientNotFound
		}
		return nil, err
	}
	if secretHash != nil {
		c.ClientSecretHash = *secretHash
	}
	return &c, nil
}

// GetByID retrieves a client by ID.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, client_name, client_secret_hash, redirect_uris, grant_types,
			scopes, is_confidential, is_active, created_at, updated_at
		FROM clients WHERE id = $1
	`, id)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get client by id: %w", err)
	}
	return c, nil
}

// Update persists changes to an existing client.
func (r *ClientRepository) Update(ctx context.Context, c *domain.Client) error {
	var rowsAffected int64
	err := withRetry(ctx, func() error {
		tag, err := r.db.pool.Exec(ctx, `
			UPDATE clients SET
				client_name = $2, client_secret_hash = $3, redirect_uris = $4,
				grant_types = $5, scopes = $6, is_confidential = $7, is_active = $8, updated_at = NOW()
			WHERE id = $1
		`, c.ID, c.ClientName, nullableSecret(c.ClientSecretHash), c.RedirectURIs, c.GrantTypes,
			c.Scopes, c.IsConfidential, c.IsActive)
		if err != nil {
			return err
		}
		rowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

// Delete hard-deletes a client by ID.
func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	var rowsAffected int64
	err := withRetry(ctx, func() error {
		tag, err := r.db.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
		if err != nil {
			return err
		}
		rowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

// List retrieves every registered client.
func (r *ClientRepository) List(ctx context.Context) ([]*domain.Client, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, client_name, client_secret_hash, redirect_uris, grant_types,
			scopes, is_confidential, is_active, created_at, updated_at
		FROM clients ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []*domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}
