package services

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

// AuthManager runs the OAuth lifecycle for every tool: authorization URLs,
// code exchange, refresh and connectivity probes. It is deliberately
// non-throwing: failures come back as zero values with a logged diagnostic,
// so a broken provider never takes a request path down with it.
type AuthManager struct {
	logger  *slog.Logger
	creds   ports.CredentialStore
	configs map[domain.ToolID]domain.IntegrationConfig
	probe   *http.Client
}

func NewAuthManager(logger *slog.Logger, creds ports.CredentialStore, configs map[domain.ToolID]domain.IntegrationConfig) *AuthManager {
	return &AuthManager{
		logger:  logger,
		creds:   creds,
		configs: configs,
		probe:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *AuthManager) oauthConfig(tool domain.ToolID) (*oauth2.Config, bool) {
	cfg, ok := m.configs[tool]
	if !ok {
		return nil, false
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}, true
}

// GenerateAuthURL builds the provider authorization URL for the user to
// visit. Returns "" when the tool has no OAuth configuration.
func (m *AuthManager) GenerateAuthURL(tool domain.ToolID, state string) string {
	cfg, ok := m.oauthConfig(tool)
	if !ok {
		m.logger.Warn("auth url requested for unconfigured tool", "tool", tool)
		return ""
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode trades an authorization code for tokens and stores them.
// Returns nil when the exchange fails.
func (m *AuthManager) ExchangeCode(ctx context.Context, tool domain.ToolID, userID, code string) *domain.OAuthTokens {
	cfg, ok := m.oauthConfig(tool)
	if !ok {
		m.logger.Warn("code exchange for unconfigured tool", "tool", tool, "user_id", userID)
		return nil
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		m.logger.Error("oauth code exchange failed", "tool", tool, "user_id", userID, "error", err)
		return nil
	}

	stored := tokensFromOAuth2(tok)
	if err := m.creds.PutTokens(ctx, userID, tool, stored); err != nil {
		m.logger.Error("failed to store tokens", "tool", tool, "user_id", userID, "error", err)
		return nil
	}

	m.logger.Info("tool authorized", "tool", tool, "user_id", userID)
	return stored
}

// RefreshToken obtains a fresh access token using the stored refresh token.
// Providers that do not rotate refresh tokens omit them from the response;
// the previous refresh token is kept in that case. Returns nil on failure.
func (m *AuthManager) RefreshToken(ctx context.Context, tool domain.ToolID, userID string) *domain.OAuthTokens {
	cfg, ok := m.oauthConfig(tool)
	if !ok {
		m.logger.Warn("refresh for unconfigured tool", "tool", tool, "user_id", userID)
		return nil
	}

	current, err := m.creds.GetTokens(ctx, userID, tool)
	if err != nil || current == nil || current.RefreshToken == "" {
		m.logger.Warn("no refresh token available", "tool", tool, "user_id", userID)
		return nil
	}

	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		m.logger.Error("token refresh failed", "tool", tool, "user_id", userID, "error", err)
		return nil
	}

	stored := tokensFromOAuth2(tok)
	if stored.RefreshToken == "" {
		stored.RefreshToken = current.RefreshToken
	}
	if err := m.creds.PutTokens(ctx, userID, tool, stored); err != nil {
		m.logger.Error("failed to store refreshed tokens", "tool", tool, "user_id", userID, "error", err)
		return nil
	}
	return stored
}

// TestConnection probes the tool's authenticated endpoint with the user's
// access token. False means unusable, whatever the reason.
func (m *AuthManager) TestConnection(ctx context.Context, tool domain.ToolID, userID string) bool {
	cfg, ok := m.configs[tool]
	if !ok || cfg.ProbeURL == "" {
		return false
	}
	tokens, err := m.creds.GetTokens(ctx, userID, tool)
	if err != nil || tokens == nil || tokens.AccessToken == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, "GET", cfg.ProbeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	resp, err := m.probe.Do(req)
	if err != nil {
		m.logger.Warn("connectivity probe failed", "tool", tool, "user_id", userID, "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// LastObtained reports when the user's tokens for the tool were acquired,
// nil when none are stored.
func (m *AuthManager) LastObtained(ctx context.Context, tool domain.ToolID, userID string) *time.Time {
	tokens, err := m.creds.GetTokens(ctx, userID, tool)
	if err != nil || tokens == nil {
		return nil
	}
	obtained := tokens.ObtainedAt
	return &obtained
}

func tokensFromOAuth2(tok *oauth2.Token) *domain.OAuthTokens {
	stored := &domain.OAuthTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ObtainedAt:   time.Now().UTC(),
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		stored.ExpiresAt = &expiry
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		stored.Scope = scope
	}
	return stored
}
