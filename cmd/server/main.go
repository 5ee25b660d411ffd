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

// Command server runs the lantern OAuth2 authorization server.
// Administrative tasks (migrations, user and client provisioning) live
// in cmd/lanternctl.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lanternauth/lantern/internal/bootstrap"
	"github.com/lanternauth/lantern/internal/config"
	"github.com/lanternauth/lantern/internal/observability/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	bootstrap.InitLogging(cfg)
	slog.Info("starting lantern authorization server")

	ctx := context.Background()
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to build server", logger.Error(err))
		os.Exit(1)
	}

	if err := app.Serve(ctx); err != nil {
		slog.Error("server stopped with error", logger.Error(err))
		os.Exit(1)
	}
	slog.Info("server stopped")
}
