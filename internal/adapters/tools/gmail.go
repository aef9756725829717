package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

const gmailID = domain.ToolID("gmail")

// GmailAdapter sends mail and lists messages through the Gmail REST API.
type GmailAdapter struct {
	connectedBase
}

func NewGmailAdapter(creds ports.CredentialStore, baseURL string) *GmailAdapter {
	if baseURL == "" {
		baseURL = "https://gmail.googleapis.com/gmail/v1"
	}
	return &GmailAdapter{connectedBase: newConnectedBase(creds, baseURL)}
}

var _ ports.ToolAdapter = (*GmailAdapter)(nil)

func (a *GmailAdapter) Capabilities() domain.ToolCapabilities {
	return domain.ToolCapabilities{
		ID:          gmailID,
		Name:        "Gmail",
		Description: "Send email and list inbox messages",
		Actions: []domain.ActionSpec{
			{Name: "send", Description: "Send an email from the connected account", Parameters: map[string]any{
				"to":      "string, recipient address",
				"subject": "string, subject line",
				"body":    "string, plain text body",
			}},
			{Name: "fetch", Description: "List recent messages", Parameters: map[string]any{
				"query": "string, gmail search query (optional)",
				"limit": "number, max messages (default 10)",
			}},
		},
		RateLimit:    &domain.RateLimit{Requests: 25, Window: time.Minute},
		RequiresAuth: true,
	}
}

func (a *GmailAdapter) Connect(ctx context.Context, userID string) domain.ConnectResult {
	return a.connect(ctx, userID, gmailID)
}

func (a *GmailAdapter) Disconnect(ctx context.Context, userID string) error {
	return a.disconnect(ctx, userID, gmailID)
}

func (a *GmailAdapter) IsConnected(ctx context.Context, userID string) bool {
	return a.isConnected(ctx, userID, gmailID)
}

func (a *GmailAdapter) Send(ctx context.Context, agentID, userID string, params map[string]any) *domain.ActionResult {
	to, ok := stringParam(params, "to")
	if !ok {
		return missingParam("to")
	}
	subject, ok := stringParam(params, "subject")
	if !ok {
		return missingParam("subject")
	}
	body, _ := stringParam(params, "body")

	// The API takes the full RFC 822 message, base64url encoded.
	rfc822 := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s", to, subject, body)
	raw := base64.URLEncoding.EncodeToString([]byte(rfc822))

	respBody, status, err := a.doJSON(ctx, "POST", a.baseURL+"/users/me/messages/send",
		a.token(ctx, userID, gmailID), map[string]any{"raw": raw})
	if err != nil {
		return transportFail(gmailID, err)
	}
	if status < 200 || status >= 300 {
		return upstreamFail(gmailID, status, respBody)
	}

	data := map[string]any{"to": to, "subject": subject}
	if id, ok := respBody["id"].(string); ok {
		data["message_id"] = id
	}
	return okResult("email sent to "+to, data)
}

func (a *GmailAdapter) Fetch(ctx context.Context, agentID, userID string, params map[string]any) *domain.ActionResult {
	limit := 10
	if n, ok := params["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}
	endpoint := fmt.Sprintf("%s/users/me/messages?maxResults=%d", a.baseURL, limit)
	if query, ok := stringParam(params, "query"); ok {
		endpoint += "&q=" + url.QueryEscape(query)
	}

	body, status, err := a.doJSON(ctx, "GET", endpoint, a.token(ctx, userID, gmailID), nil)
	if err != nil {
		return transportFail(gmailID, err)
	}
	if status < 200 || status >= 300 {
		return upstreamFail(gmailID, status, body)
	}

	messages, _ := body["messages"].([]any)
	return okResult(fmt.Sprintf("fetched %d messages", len(messages)), map[string]any{
		"messages": messages,
	})
}
