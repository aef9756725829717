package tools

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

// memCreds is an in-memory CredentialStore for adapter tests.
type memCreds struct {
	mu     sync.Mutex
	tokens map[string]*domain.OAuthTokens
}

func newMemCreds() *memCreds {
	return &memCreds{tokens: make(map[string]*domain.OAuthTokens)}
}

func credsKey(userID string, tool domain.ToolID) string {
	return userID + "/" + string(tool)
}

func (m *memCreds) GetTokens(_ context.Context, userID string, tool domain.ToolID) (*domain.OAuthTokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[credsKey(userID, tool)]
	if !ok {
		return nil, domain.ErrNoTokens
	}
	return t, nil
}

func (m *memCreds) PutTokens(_ context.Context, userID string, tool domain.ToolID, tokens *domain.OAuthTokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[credsKey(userID, tool)] = tokens
	return nil
}

func (m *memCreds) DeleteTokens(_ context.Context, userID string, tool domain.ToolID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credsKey(userID, tool)
	if _, ok := m.tokens[key]; !ok {
		return domain.ErrNoTokens
	}
	delete(m.tokens, key)
	return nil
}

var _ ports.CredentialStore = (*memCreds)(nil)

func seededCreds(t *testing.T, userID string, tool domain.ToolID) *memCreds {
	t.Helper()
	creds := newMemCreds()
	err := creds.PutTokens(context.Background(), userID, tool, &domain.OAuthTokens{
		AccessToken: "tok-" + userID,
		ObtainedAt:  time.Now(),
	})
	require.NoError(t, err)
	return creds
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	creds := newMemCreds()

	require.NoError(t, reg.Register(NewSlackAdapter(creds, "")))
	require.NoError(t, reg.Register(NewGitHubAdapter(creds, "")))
	err := reg.Register(NewSlackAdapter(creds, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.Equal(t, []domain.ToolID{"github", "slack"}, reg.IDs())

	caps := reg.Capabilities()
	require.Len(t, caps, 2)
	assert.Equal(t, domain.ToolID("github"), caps[0].ID)
	assert.Equal(t, domain.ToolID("slack"), caps[1].ID)
}

func TestSlackSendPostsMessage(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat.postMessage", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"ok":true,"ts":"1724.001"}`)
	}))
	defer srv.Close()

	adapter := NewSlackAdapter(seededCreds(t, "u1", slackID), srv.URL)
	res := adapter.Send(context.Background(), "agent-1", "u1", map[string]any{
		"channel": "#general",
		"text":    "deploy done",
	})

	require.True(t, res.Success)
	assert.Equal(t, "Bearer tok-u1", gotAuth)
	assert.Equal(t, "#general", gotBody["channel"])
	assert.Equal(t, "1724.001", res.Data["ts"])
}

func TestSlackSendSurfacesAppError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"channel_not_found"}`)
	}))
	defer srv.Close()

	adapter := NewSlackAdapter(seededCreds(t, "u1", slackID), srv.URL)
	res := adapter.Send(context.Background(), "", "u1", map[string]any{
		"channel": "#nope",
		"text":    "hi",
	})

	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeUpstreamError, res.Error.Code)
	assert.Contains(t, res.Error.Message, "channel_not_found")
}

func TestSlackMissingParam(t *testing.T) {
	adapter := NewSlackAdapter(newMemCreds(), "http://unused.invalid")
	res := adapter.Send(context.Background(), "", "u1", map[string]any{"text": "hi"})

	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeInvalidParams, res.Error.Code)
	assert.Equal(t, "channel", res.Error.Details["parameter"])
}

func TestGitHubSendCreatesIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/api/issues", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number":42,"html_url":"https://github.com/acme/api/issues/42"}`)
	}))
	defer srv.Close()

	adapter := NewGitHubAdapter(seededCreds(t, "u1", githubID), srv.URL)
	res := adapter.Send(context.Background(), "", "u1", map[string]any{
		"repo":  "acme/api",
		"title": "flaky deploy",
	})

	require.True(t, res.Success)
	assert.Equal(t, 42, res.Data["issue_number"])
	assert.Equal(t, "https://github.com/acme/api/issues/42", res.Data["url"])
}

func TestGitHubFetchListsIssues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "closed", r.URL.Query().Get("state"))
		fmt.Fprint(w, `[{"number":1},{"number":2}]`)
	}))
	defer srv.Close()

	adapter := NewGitHubAdapter(seededCreds(t, "u1", githubID), srv.URL)
	res := adapter.Fetch(context.Background(), "", "u1", map[string]any{
		"repo":  "acme/api",
		"state": "closed",
	})

	require.True(t, res.Success)
	issues, ok := res.Data["issues"].([]any)
	require.True(t, ok)
	assert.Len(t, issues, 2)
}

func TestGmailSendEncodesMessage(t *testing.T) {
	var gotRaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/me/messages/send", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotRaw, _ = body["raw"].(string)
		fmt.Fprint(w, `{"id":"msg-7"}`)
	}))
	defer srv.Close()

	adapter := NewGmailAdapter(seededCreds(t, "u1", gmailID), srv.URL)
	res := adapter.Send(context.Background(), "", "u1", map[string]any{
		"to":      "ops@example.com",
		"subject": "nightly report",
		"body":    "all green",
	})

	require.True(t, res.Success)
	assert.Equal(t, "msg-7", res.Data["message_id"])

	decoded, err := base64.URLEncoding.DecodeString(gotRaw)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(decoded), "To: ops@example.com"))
	assert.True(t, strings.Contains(string(decoded), "all green"))
}

func TestWebhookSendSignsPayload(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Pontoon-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"received":true}`)
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter(newMemCreds(), "hush")
	res := adapter.Send(context.Background(), "", "u1", map[string]any{
		"url":     srv.URL + "/hook",
		"payload": map[string]any{"event": "done"},
	})

	require.True(t, res.Success)
	assert.Equal(t, 200, res.Data["status"])

	mac := hmac.New(sha256.New, []byte("hush"))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSig)
}

func TestWebhookNeedsNoAuth(t *testing.T) {
	adapter := NewWebhookAdapter(newMemCreds(), "")
	assert.True(t, adapter.IsConnected(context.Background(), "anyone"))
	assert.True(t, adapter.Connect(context.Background(), "anyone").Connected)
	assert.False(t, adapter.Capabilities().RequiresAuth)
}

func TestConnectWithoutCredentials(t *testing.T) {
	adapter := NewSlackAdapter(newMemCreds(), "")
	res := adapter.Connect(context.Background(), "u1")

	assert.False(t, res.Connected)
	assert.Contains(t, res.Error, "authorization flow")
	assert.False(t, adapter.IsConnected(context.Background(), "u1"))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	creds := seededCreds(t, "u1", slackID)
	adapter := NewSlackAdapter(creds, "")

	require.NoError(t, adapter.Disconnect(context.Background(), "u1"))
	require.NoError(t, adapter.Disconnect(context.Background(), "u1"))
	assert.False(t, adapter.IsConnected(context.Background(), "u1"))
}
