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

package domain

import (
	"context"
	"time"
)

// User represents an end user capable of authenticating via the
// password grant or consenting to an authorization-code request.
//
// Purpose: Core identity entity for the resource owner side of a grant.
// Domain: OAuth2
// Invariants: Username and Email are each globally unique. An inactive
// user can never authenticate, regardless of credential correctness.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository defines the interface for user persistence.
//
// Purpose: Abstraction for managing user identity storage.
// Domain: OAuth2
type UserRepository interface {
	// Create persists a new user. Returns ErrUserAlreadyExists if the
	// username or email is already taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by internal ID. Returns
	// ErrUserNotFound if absent.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername retrieves a user by username. Comparison is
	// case-sensitive; the caller is responsible for any normalization
	// policy. Returns ErrUserNotFound if absent.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by email. Comparison is
	// case-sensitive. Returns ErrUserNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update persists changes to an existing user.
	Update(ctx context.Context, user *User) error

	// Delete hard-deletes a user by ID.
	Delete(ctx context.Context, id string) error
}
