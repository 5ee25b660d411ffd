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

// Package app implements the lanternctl command tree.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lanternauth/lantern/internal/config"
)

// NewRootCmd creates the lanternctl root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lanternctl",
		Short: "Administrative CLI for the lantern OAuth2 authorization server",
		Long: `lanternctl manages the lantern authorization server's database schema
and provisions the OAuth2 clients and users it serves.

Configuration is read from the same environment variables as the
server process (DB_HOST, DB_PASSWORD, SIGNING_PRIVATE_KEY, ...).`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDBCmd())
	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newClientCmd())

	return rootCmd
}

// loadConfig loads configuration or exits with a user-facing message.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
