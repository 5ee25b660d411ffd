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
	"bufio"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lanternauth/lantern/internal/domain"
	"github.com/lanternauth/lantern/internal/id"
	"github.com/lanternauth/lantern/internal/password"
	"github.com/lanternauth/lantern/internal/store/postgres"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage resource owner accounts",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a resource owner account",
		Long: `Create a resource owner account that can authenticate via the
password grant or approve authorization-code requests.

If stdin is piped, the password is read from it; otherwise you are
prompted and the input is hidden.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || email == "" {
				return fmt.Errorf("--username and --email are required")
			}

			plaintext, err := readSecret("Password")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}

			cfg := loadConfig()
			ctx := cmd.Context()

			db, err := connectDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			hasher := password.NewHasher(
				cfg.Security.Argon2Memory,
				cfg.Security.Argon2Iterations,
				cfg.Security.Argon2Parallelism,
				cfg.Security.Argon2SaltLength,
				cfg.Security.Argon2KeyLength,
			)
			hash, err := hasher.Hash(plaintext)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			now := time.Now()
			user := &domain.User{
				ID:           id.New(),
				Username:     username,
				Email:        email,
				PasswordHash: hash,
				IsActive:     true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}

			userRepo := postgres.NewUserRepository(db)
			if err := userRepo.Create(ctx, user); err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			fmt.Printf("created user %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "unique username (required)")
	cmd.Flags().StringVar(&email, "email", "", "unique email address (required)")
	return cmd
}

// readSecret reads a single line from stdin without echoing it when
// stdin is a terminal, and transparently when it is piped.
func readSecret(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return trimNewline(line), nil
	}

	fmt.Printf("%s: ", prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
