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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lanternauth/lantern/internal/bootstrap"
	"github.com/lanternauth/lantern/internal/observability/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP authorization server",
		Long:  "Start the HTTP authorization server. Equivalent to running the lantern-server binary directly.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			bootstrap.InitLogging(cfg)
			slog.Info("starting lantern authorization server")

			ctx := cmd.Context()
			appInstance, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				slog.Error("failed to build server", logger.Error(err))
				return err
			}

			if err := appInstance.Serve(ctx); err != nil {
				slog.Error("server stopped with error", logger.Error(err))
				return err
			}
			slog.Info("server stopped")
			return nil
		},
	}
}
