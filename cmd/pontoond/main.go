package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pontoonhq/pontoon/internal/adapters/cache"
	"github.com/pontoonhq/pontoon/internal/adapters/duckdb"
	"github.com/pontoonhq/pontoon/internal/adapters/tools"
	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
	"github.com/pontoonhq/pontoon/internal/core/services"
	"github.com/pontoonhq/pontoon/pkg/gateway"
	"github.com/rs/cors"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting pontoon")

	if err := run(logger); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	dbPath := envOr("PONTOON_DB_PATH", "pontoon.db")
	repo, err := duckdb.NewRepository(dbPath)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	defer repo.Close()

	// Rate limiting and caching degrade to no-op when Redis is absent.
	rateCache := cache.Select(ctx, os.Getenv("PONTOON_REDIS_ADDR"), logger)

	// Tool adapters
	registry := tools.NewRegistry()
	adapters := []ports.ToolAdapter{
		tools.NewSlackAdapter(repo, ""),
		tools.NewGitHubAdapter(repo, ""),
		tools.NewGmailAdapter(repo, ""),
		tools.NewWebhookAdapter(repo, os.Getenv("PONTOON_WEBHOOK_SECRET")),
	}
	for _, adapter := range adapters {
		if err := registry.Register(adapter); err != nil {
			return fmt.Errorf("failed to register adapter: %w", err)
		}
	}

	// Core services
	auth := services.NewAuthManager(logger, repo, oauthConfigs())
	router := services.NewIntegrationRouter(logger, registry, auth, rateCache)

	agents := services.NewMemoryAgentDirectory(domain.AgentProfile{
		ID:   envOr("PONTOON_DEFAULT_AGENT_ID", "default"),
		Name: "default",
		Role: "assistant",
	})

	eventBus := services.NewEventBus(logger)
	engine := services.NewWorkflowEngine(logger, repo, repo, router, agents, eventBus)
	scheduler := services.NewScheduler(logger, repo, engine, 30*time.Second)

	// HTTP surface
	apiServer := gateway.NewServer(logger, router, engine, auth, repo, eventBus)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	handler := c.Handler(apiServer.Handler())

	addr := envOr("PONTOON_HTTP_ADDR", ":8080")
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := scheduler.Run(gCtx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info("starting api server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// oauthConfigs reads per-tool OAuth settings from the environment. Tools
// without a client id stay unconfigured; the auth manager rejects them at
// call time.
func oauthConfigs() map[domain.ToolID]domain.IntegrationConfig {
	configs := make(map[domain.ToolID]domain.IntegrationConfig)

	if id := os.Getenv("PONTOON_SLACK_CLIENT_ID"); id != "" {
		configs["slack"] = domain.IntegrationConfig{
			ClientID:     id,
			ClientSecret: os.Getenv("PONTOON_SLACK_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("PONTOON_OAUTH_REDIRECT_URL"),
			Scopes:       []string{"chat:write", "channels:history"},
			AuthURL:      "https://slack.com/oauth/v2/authorize",
			TokenURL:     "https://slack.com/api/oauth.v2.access",
			ProbeURL:     "https://slack.com/api/auth.test",
		}
	}
	if id := os.Getenv("PONTOON_GITHUB_CLIENT_ID"); id != "" {
		configs["github"] = domain.IntegrationConfig{
			ClientID:     id,
			ClientSecret: os.Getenv("PONTOON_GITHUB_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("PONTOON_OAUTH_REDIRECT_URL"),
			Scopes:       []string{"repo"},
			AuthURL:      "https://github.com/login/oauth/authorize",
			TokenURL:     "https://github.com/login/oauth/access_token",
			ProbeURL:     "https://api.github.com/user",
		}
	}
	if id := os.Getenv("PONTOON_GOOGLE_CLIENT_ID"); id != "" {
		configs["gmail"] = domain.IntegrationConfig{
			ClientID:     id,
			ClientSecret: os.Getenv("PONTOON_GOOGLE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("PONTOON_OAUTH_REDIRECT_URL"),
			Scopes:       []string{"https://www.googleapis.com/auth/gmail.send", "https://www.googleapis.com/auth/gmail.readonly"},
			AuthURL:      "https://accounts.google.com/o/oauth2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			ProbeURL:     "https://gmail.googleapis.com/gmail/v1/users/me/profile",
		}
	}

	return configs
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
