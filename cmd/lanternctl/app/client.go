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

package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternauth/lantern/internal/audit"
	"github.com/lanternauth/lantern/internal/domain"
	"github.com/lanternauth/lantern/internal/id"
	"github.com/lanternauth/lantern/internal/password"
	"github.com/lanternauth/lantern/internal/store/postgres"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage registered OAuth2 clients",
	}
	cmd.AddCommand(newClientCreateCmd())
	cmd.AddCommand(newClientDeleteCmd())
	return cmd
}

func newClientCreateCmd() *cobra.Command {
	var (
		name         string
		redirectURIs []string
		grantTypes   []string
		scopes       []string
		public       bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new OAuth2 client",
		Long: `Register a new OAuth2 client and print its client_id and
client_secret. The secret is shown exactly once here: only its
argon2id hash is persisted, so it cannot be recovered later.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if len(grantTypes) == 0 {
				return fmt.Errorf("--grant-type is required (repeatable)")
			}
			if !public && len(redirectURIs) == 0 {
				for _, gt := range grantTypes {
					if gt == domain.GrantAuthorizationCode {
						return fmt.Errorf("--redirect-uri is required for the authorization_code grant")
					}
				}
			}

			cfg := loadConfig()
			ctx := cmd.Context()

			db, err := connectDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			clientID := strings.ReplaceAll(id.New(), "-", "")
			client := &domain.Client{
				ID:             clientID,
				ClientName:     name,
				RedirectURIs:   redirectURIs,
				GrantTypes:     grantTypes,
				Scopes:         scopes,
				IsConfidential: !public,
				IsActive:       true,
				CreatedAt:      time.Now(),
				UpdatedAt:      time.Now(),
			}

			var secret string
			if !public {
				secret = password.GenerateClientSecret()
				hasher := password.NewHasher(
					cfg.Security.Argon2Memory,
					cfg.Security.Argon2Iterations,
					cfg.Security.Argon2Parallelism,
					cfg.Security.Argon2SaltLength,
					cfg.Security.Argon2KeyLength,
				)
				hash, err := hasher.Hash(secret)
				if err != nil {
					return fmt.Errorf("hash client secret: %w", err)
				}
				client.ClientSecretHash = hash
			}

			clientRepo := postgres.NewClientRepository(db)
			if err := clientRepo.Create(ctx, client); err != nil {
				return fmt.Errorf("create client: %w", err)
			}

			fmt.Printf("client_id:     %s\n", client.ID)
			if secret != "" {
				fmt.Printf("client_secret: %s\n", secret)
				fmt.Println("(this is the only time the secret is displayed)")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "human-readable client name (required)")
	cmd.Flags().StringSliceVar(&redirectURIs, "redirect-uri", nil, "registered redirect URI (repeatable)")
	cmd.Flags().StringSliceVar(&grantTypes, "grant-type", nil, "grant type this client may use (repeatable, required)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scope this client may request (repeatable)")
	cmd.Flags().BoolVar(&public, "public", false, "register a public client (no secret; PKCE is not enforced for it)")
	return cmd
}

// newClientDeleteCmd permanently removes a client registration. The
// deletion is audit-logged before the row is removed, since the
// repository performs a hard delete with no recoverable trace of its
// own.
func newClientDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <client_id>",
		Short: "Permanently remove a client registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID := args[0]
			cfg := loadConfig()
			ctx := cmd.Context()

			db, err := connectDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			clientRepo := postgres.NewClientRepository(db)
			if _, err := clientRepo.GetByID(ctx, clientID); err != nil {
				return fmt.Errorf("lookup client: %w", err)
			}

			auditLogger := audit.NewSlogLogger()
			auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeClientDeleted,
				ActorID:  clientID,
				Resource: audit.ResourceClient,
			})

			if err := clientRepo.Delete(ctx, clientID); err != nil {
				return fmt.Errorf("delete client: %w", err)
			}

			fmt.Printf("deleted client %s\n", clientID)
			return nil
		},
	}
	return cmd
}
