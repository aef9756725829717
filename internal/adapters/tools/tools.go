package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

// connectedBase carries what every OAuth-backed adapter shares: credential
// lookup, an injectable HTTP client and base URL (tests point these at
// httptest servers).
type connectedBase struct {
	creds   ports.CredentialStore
	client  *http.Client
	baseURL string
}

func newConnectedBase(creds ports.CredentialStore, baseURL string) connectedBase {
	return connectedBase{
		creds:   creds,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
	}
}

// token returns the user's access token, or "" when none is usable.
func (b *connectedBase) token(ctx context.Context, userID string, tool domain.ToolID) string {
	tokens, err := b.creds.GetTokens(ctx, userID, tool)
	if err != nil || tokens == nil || tokens.AccessToken == "" {
		return ""
	}
	if tokens.Expired() && tokens.RefreshToken == "" {
		return ""
	}
	return tokens.AccessToken
}

func (b *connectedBase) isConnected(ctx context.Context, userID string, tool domain.ToolID) bool {
	return b.token(ctx, userID, tool) != ""
}

func (b *connectedBase) connect(ctx context.Context, userID string, tool domain.ToolID) domain.ConnectResult {
	if b.isConnected(ctx, userID, tool) {
		return domain.ConnectResult{Connected: true}
	}
	return domain.ConnectResult{
		Connected: false,
		Error:     fmt.Sprintf("no valid credentials for %s, complete the authorization flow first", tool),
	}
}

func (b *connectedBase) disconnect(ctx context.Context, userID string, tool domain.ToolID) error {
	if err := b.creds.DeleteTokens(ctx, userID, tool); err != nil && !errors.Is(err, domain.ErrNoTokens) {
		return fmt.Errorf("failed to delete %s credentials: %w", tool, err)
	}
	return nil
}

// doJSON performs one authenticated JSON request and decodes the body. The
// status code is returned alongside so callers can translate non-2xx bodies
// into uniform errors.
func (b *connectedBase) doJSON(ctx context.Context, method, url, token string, payload any) (map[string]any, int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			// Non-JSON bodies still matter for error reporting.
			decoded = map[string]any{"raw": string(raw)}
		}
	}
	return decoded, resp.StatusCode, nil
}

// doJSONWithHeader is doJSON plus one extra request header.
func (b *connectedBase) doJSONWithHeader(ctx context.Context, method, url string, payload any, header, value string) (map[string]any, int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, value)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	var decoded map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil {
			decoded = map[string]any{"raw": string(body)}
		}
	}
	return decoded, resp.StatusCode, nil
}

// newListRequest builds an authenticated GET for endpoints that answer with
// a JSON array instead of an object.
func (b *connectedBase) newListRequest(ctx context.Context, endpoint, userID string, tool domain.ToolID) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := b.token(ctx, userID, tool); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func decodeJSONArray(r io.Reader) ([]any, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode array response: %w", err)
	}
	return items, nil
}

// Uniform result constructors. Adapters never leak raw upstream errors.

func okResult(message string, data map[string]any) *domain.ActionResult {
	return &domain.ActionResult{Success: true, Message: message, Data: data}
}

func failResult(code domain.ErrorCode, message string, details map[string]any) *domain.ActionResult {
	return &domain.ActionResult{
		Success: false,
		Message: message,
		Error:   &domain.IntegrationError{Code: code, Message: message, Details: details},
	}
}

func upstreamFail(tool domain.ToolID, status int, body map[string]any) *domain.ActionResult {
	return failResult(domain.CodeUpstreamError,
		fmt.Sprintf("%s API returned status %d", tool, status),
		map[string]any{"status": status, "body": body},
	)
}

func transportFail(tool domain.ToolID, err error) *domain.ActionResult {
	return failResult(domain.CodeUpstreamError,
		fmt.Sprintf("%s request failed: %v", tool, err), nil)
}

// stringParam pulls a required string out of a parameter bag.
func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func missingParam(key string) *domain.ActionResult {
	return failResult(domain.CodeInvalidParams,
		fmt.Sprintf("missing required parameter %q", key),
		map[string]any{"parameter": key})
}
