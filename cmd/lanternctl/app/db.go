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

	"github.com/spf13/cobra"

	"github.com/lanternauth/lantern/internal/store/postgres"
)

// dropSchemaSQL removes every table the initial schema creates, in
// dependency order (tokens reference clients; codes reference clients
// and users).
const dropSchemaSQL = `
DROP TABLE IF EXISTS tokens;
DROP TABLE IF EXISTS authorization_codes;
DROP TABLE IF EXISTS clients;
DROP TABLE IF EXISTS users;
`

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(newDBCreateCmd(), newDBDropCmd())
	return cmd
}

func newDBCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Apply the initial schema, creating any tables that do not already exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			ctx := cmd.Context()

			db, err := connectDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}

			fmt.Println("schema applied")
			return nil
		},
	}
}

func newDBDropCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop every table the schema created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return fmt.Errorf("refusing to drop the schema without --force")
			}

			cfg := loadConfig()
			ctx := cmd.Context()

			db, err := connectDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(ctx, dropSchemaSQL); err != nil {
				return fmt.Errorf("drop schema: %w", err)
			}

			fmt.Println("schema dropped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the drop")
	return cmd
}
