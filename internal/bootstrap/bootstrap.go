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

// Package bootstrap wires the authorization server's dependency graph
// so it can be started identically from the long-running server binary
// and from the admin CLI's "serve" subcommand.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanternauth/lantern/internal/audit"
	"github.com/lanternauth/lantern/internal/cache"
	"github.com/lanternauth/lantern/internal/config"
	"github.com/lanternauth/lantern/internal/grant"
	"github.com/lanternauth/lantern/internal/introspect"
	"github.com/lanternauth/lantern/internal/observability/logger"
	"github.com/lanternauth/lantern/internal/observability/metrics"
	"github.com/lanternauth/lantern/internal/observability/tracing"
	"github.com/lanternauth/lantern/internal/password"
	"github.com/lanternauth/lantern/internal/signing"
	"github.com/lanternauth/lantern/internal/store/postgres"
	transportHTTP "github.com/lanternauth/lantern/internal/transport/http"
)

// App holds the constructed dependency graph for a running server.
type App struct {
	Config *config.Config
	DB     *postgres.DB
	Engine *grant.Engine
	Signer *signing.Service
	Server *http.Server
	tracer *tracing.Tracer
}

// Build wires every component from an already-loaded configuration,
// but does not start listening; Serve does that.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	signer, err := buildSigner(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load signing key: %w", err)
	}

	tokenCache := buildCache(ctx, cfg)
	auditLogger := audit.NewSlogLogger()
	hasher := password.NewHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	userRepo := postgres.NewUserRepository(db)
	clientRepo := postgres.NewClientRepository(db)
	codeRepo := postgres.NewCodeRepository(db)
	tokenRepo := postgres.NewTokenRepository(db)

	engine := grant.New(userRepo, clientRepo, codeRepo, tokenRepo, hasher, signer, auditLogger, grant.Config{
		AuthCodeLifetime:     cfg.Signing.AuthCodeLifetime,
		AccessTokenLifetime:  cfg.Signing.AccessTokenLifetime,
		RefreshTokenLifetime: cfg.Signing.RefreshTokenLifetime,
	})
	introspectSvc := introspect.New(tokenRepo, signer, tokenCache, auditLogger)

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	handler := transportHTTP.NewHandler(engine, introspectSvc, signer, auditLogger, cfg.Signing.Issuer)
	router := transportHTTP.NewRouter(handler, rateLimiter, cfg.Server.CORSOrigins)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		Config: cfg,
		DB:     db,
		Engine: engine,
		Signer: signer,
		Server: server,
	}, nil
}

// Serve starts the HTTP listener and blocks until SIGINT/SIGTERM,
// then drains in-flight requests before returning.
func (a *App) Serve(ctx context.Context) error {
	defer a.DB.Close()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        a.Config.Observability.OTELEnabled,
		ServiceName:    a.Config.Observability.ServiceName,
		ServiceVersion: a.Config.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	a.tracer = tracer
	defer a.tracer.Shutdown(ctx)

	if _, err := metrics.New(ctx, metrics.Config{Enabled: a.Config.Observability.OTELEnabled}, a.Config.Observability.ServiceName); err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	stopCleanup := a.runExpiryCleanup(ctx)
	defer stopCleanup()

	errCh := make(chan error, 1)
	go func() {
		slog.Info(fmt.Sprintf("listening on %s", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Server.Shutdown(shutdownCtx)
}

// runExpiryCleanup periodically deletes expired authorization codes
// and tokens. Neither table needs this for correctness, since expiry
// is checked on every read; it only bounds table growth.
func (a *App) runExpiryCleanup(ctx context.Context) (stop func()) {
	codeRepo := postgres.NewCodeRepository(a.DB)
	tokenRepo := postgres.NewTokenRepository(a.DB)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if n, err := codeRepo.DeleteExpired(ctx); err != nil {
					slog.ErrorContext(ctx, "failed to delete expired codes", logger.Error(err))
				} else if n > 0 {
					slog.InfoContext(ctx, "deleted expired authorization codes", "count", n)
				}
				if n, err := tokenRepo.DeleteExpired(ctx); err != nil {
					slog.ErrorContext(ctx, "failed to delete expired tokens", logger.Error(err))
				} else if n > 0 {
					slog.InfoContext(ctx, "deleted expired tokens", "count", n)
				}
			}
		}
	}()
	return func() { close(done) }
}

// InitLogging configures the global slog logger. Called once per
// process before Build, so that Build's own log lines are formatted
// correctly.
func InitLogging(cfg *config.Config) {
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
}

func buildSigner(cfg *config.Config) (*signing.Service, error) {
	key, err := signing.LoadPrivateKeyPEM([]byte(cfg.Signing.PrivateKeyPEM))
	if err != nil {
		key, err = signing.LoadPrivateKeyBase64(cfg.Signing.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
	}
	return signing.NewService(key, cfg.Signing.Issuer), nil
}

func buildCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.Cache.Addr == "" || cfg.Cache.Addr == "memory" {
		slog.Warn("CACHE_ADDR not set, using in-process cache (not safe for multi-instance deployments)")
		return cache.NewMemory()
	}

	redisCache, err := cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	if err != nil {
		slog.Warn("failed to connect to redis, falling back to in-process cache", logger.Error(err))
		return cache.NewMemory()
	}
	return redisCache
}
