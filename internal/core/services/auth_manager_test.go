package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pontoonhq/pontoon/internal/core/domain"
)

func authConfigs(tokenURL, probeURL string) map[domain.ToolID]domain.IntegrationConfig {
	return map[domain.ToolID]domain.IntegrationConfig{
		"slack": {
			ClientID:     "client-1",
			ClientSecret: "secret-1",
			RedirectURL:  "https://portal.example.com/callback",
			Scopes:       []string{"chat:write"},
			AuthURL:      "https://auth.example.com/authorize",
			TokenURL:     tokenURL,
			ProbeURL:     probeURL,
		},
	}
}

func TestGenerateAuthURL(t *testing.T) {
	store := newMemStore()
	mgr := NewAuthManager(testLogger(), store, authConfigs("https://auth.example.com/token", ""))

	u := mgr.GenerateAuthURL("slack", "state-xyz")

	assert.Contains(t, u, "https://auth.example.com/authorize")
	assert.Contains(t, u, "client_id=client-1")
	assert.Contains(t, u, "state=state-xyz")
	assert.Contains(t, u, "scope=chat%3Awrite")
}

func TestGenerateAuthURLUnknownTool(t *testing.T) {
	mgr := NewAuthManager(testLogger(), newMemStore(), nil)
	assert.Empty(t, mgr.GenerateAuthURL("notion", "s"))
}

func TestExchangeCodeStoresTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-1","token_type":"bearer","refresh_token":"rt-1","expires_in":3600,"scope":"chat:write"}`)
	}))
	defer srv.Close()

	store := newMemStore()
	mgr := NewAuthManager(testLogger(), store, authConfigs(srv.URL, ""))

	tokens := mgr.ExchangeCode(context.Background(), "slack", "u1", "the-code")

	require.NotNil(t, tokens)
	assert.Equal(t, "at-1", tokens.AccessToken)
	assert.Equal(t, "rt-1", tokens.RefreshToken)
	require.NotNil(t, tokens.ExpiresAt)
	assert.False(t, tokens.Expired())

	stored, err := store.GetTokens(context.Background(), "u1", "slack")
	require.NoError(t, err)
	assert.Equal(t, "at-1", stored.AccessToken)
}

func TestExchangeCodeFailureReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	store := newMemStore()
	mgr := NewAuthManager(testLogger(), store, authConfigs(srv.URL, ""))

	assert.Nil(t, mgr.ExchangeCode(context.Background(), "slack", "u1", "bad-code"))

	_, err := store.GetTokens(context.Background(), "u1", "slack")
	assert.ErrorIs(t, err, domain.ErrNoTokens)
}

func TestRefreshKeepsPriorRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "rt-old", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		// Provider rotates the access token only.
		fmt.Fprint(w, `{"access_token":"at-new","token_type":"bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	store := newMemStore()
	require.NoError(t, store.PutTokens(context.Background(), "u1", "slack", &domain.OAuthTokens{
		AccessToken:  "at-old",
		RefreshToken: "rt-old",
		ObtainedAt:   time.Now().Add(-2 * time.Hour),
	}))
	mgr := NewAuthManager(testLogger(), store, authConfigs(srv.URL, ""))

	tokens := mgr.RefreshToken(context.Background(), "slack", "u1")

	require.NotNil(t, tokens)
	assert.Equal(t, "at-new", tokens.AccessToken)
	assert.Equal(t, "rt-old", tokens.RefreshToken)

	stored, err := store.GetTokens(context.Background(), "u1", "slack")
	require.NoError(t, err)
	assert.Equal(t, "rt-old", stored.RefreshToken)
}

func TestRefreshWithoutStoredToken(t *testing.T) {
	mgr := NewAuthManager(testLogger(), newMemStore(), authConfigs("https://unused.invalid", ""))
	assert.Nil(t, mgr.RefreshToken(context.Background(), "slack", "u1"))
}

func TestConnectionProbe(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if gotAuth != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newMemStore()
	mgr := NewAuthManager(testLogger(), store, authConfigs("https://unused.invalid", srv.URL))

	// No tokens stored yet.
	assert.False(t, mgr.TestConnection(context.Background(), "slack", "u1"))

	require.NoError(t, store.PutTokens(context.Background(), "u1", "slack", &domain.OAuthTokens{
		AccessToken: "at-1", ObtainedAt: time.Now(),
	}))
	assert.True(t, mgr.TestConnection(context.Background(), "slack", "u1"))
	assert.Equal(t, "Bearer at-1", gotAuth)

	require.NoError(t, store.PutTokens(context.Background(), "u1", "slack", &domain.OAuthTokens{
		AccessToken: "wrong", ObtainedAt: time.Now(),
	}))
	assert.False(t, mgr.TestConnection(context.Background(), "slack", "u1"))
}

func TestLastObtained(t *testing.T) {
	store := newMemStore()
	mgr := NewAuthManager(testLogger(), store, nil)

	assert.Nil(t, mgr.LastObtained(context.Background(), "slack", "u1"))

	obtained := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.PutTokens(context.Background(), "u1", "slack", &domain.OAuthTokens{
		AccessToken: "at", ObtainedAt: obtained,
	}))

	got := mgr.LastObtained(context.Background(), "slack", "u1")
	require.NotNil(t, got)
	assert.WithinDuration(t, obtained, *got, time.Second)
}
