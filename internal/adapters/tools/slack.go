package tools

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

const slackID = domain.ToolID("slack")

// SlackAdapter posts and reads messages through the Slack Web API.
type SlackAdapter struct {
	connectedBase
}

func NewSlackAdapter(creds ports.CredentialStore, baseURL string) *SlackAdapter {
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}
	return &SlackAdapter{connectedBase: newConnectedBase(creds, baseURL)}
}

var _ ports.ToolAdapter = (*SlackAdapter)(nil)

func (a *SlackAdapter) Capabilities() domain.ToolCapabilities {
	return domain.ToolCapabilities{
		ID:          slackID,
		Name:        "Slack",
		Description: "Send messages to channels and read conversation history",
		Actions: []domain.ActionSpec{
			{Name: "send", Description: "Post a message to a channel", Parameters: map[string]any{
				"channel": "string, channel name or id",
				"text":    "string, message body",
			}},
			{Name: "fetch", Description: "Read recent messages from a channel", Parameters: map[string]any{
				"channel": "string, channel name or id",
				"limit":   "number, max messages (default 20)",
			}},
		},
		RateLimit:    &domain.RateLimit{Requests: 50, Window: time.Minute},
		RequiresAuth: true,
	}
}

func (a *SlackAdapter) Connect(ctx context.Context, userID string) domain.ConnectResult {
	return a.connect(ctx, userID, slackID)
}

func (a *SlackAdapter) Disconnect(ctx context.Context, userID string) error {
	return a.disconnect(ctx, userID, slackID)
}

func (a *SlackAdapter) IsConnected(ctx context.Context, userID string) bool {
	return a.isConnected(ctx, userID, slackID)
}

func (a *SlackAdapter) Send(ctx context.Context, agentID, userID string, params map[string]any) *domain.ActionResult {
	channel, ok := stringParam(params, "channel")
	if !ok {
		return missingParam("channel")
	}
	text, ok := stringParam(params, "text")
	if !ok {
		return missingParam("text")
	}

	body, status, err := a.doJSON(ctx, "POST", a.baseURL+"/chat.postMessage", a.token(ctx, userID, slackID), map[string]any{
		"channel": channel,
		"text":    text,
	})
	if err != nil {
		return transportFail(slackID, err)
	}
	if status < 200 || status >= 300 {
		return upstreamFail(slackID, status, body)
	}
	// Slack reports application errors with 200 + ok=false.
	if okFlag, _ := body["ok"].(bool); !okFlag {
		reason, _ := body["error"].(string)
		return failResult(domain.CodeUpstreamError,
			fmt.Sprintf("slack rejected the message: %s", reason),
			map[string]any{"slack_error": reason})
	}

	data := map[string]any{"channel": channel}
	if ts, ok := body["ts"].(string); ok {
		data["ts"] = ts
	}
	return okResult("message posted to "+channel, data)
}

func (a *SlackAdapter) Fetch(ctx context.Context, agentID, userID string, params map[string]any) *domain.ActionResult {
	channel, ok := stringParam(params, "channel")
	if !ok {
		return missingParam("channel")
	}
	limit := 20
	if n, ok := params["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}

	endpoint := fmt.Sprintf("%s/conversations.history?channel=%s&limit=%d",
		a.baseURL, url.QueryEscape(channel), limit)
	body, status, err := a.doJSON(ctx, "GET", endpoint, a.token(ctx, userID, slackID), nil)
	if err != nil {
		return transportFail(slackID, err)
	}
	if status < 200 || status >= 300 {
		return upstreamFail(slackID, status, body)
	}
	if okFlag, _ := body["ok"].(bool); !okFlag {
		reason, _ := body["error"].(string)
		return failResult(domain.CodeUpstreamError,
			fmt.Sprintf("slack history fetch failed: %s", reason),
			map[string]any{"slack_error": reason})
	}

	messages, _ := body["messages"].([]any)
	return okResult(fmt.Sprintf("fetched %d messages from %s", len(messages), channel), map[string]any{
		"channel":  channel,
		"messages": messages,
	})
}
