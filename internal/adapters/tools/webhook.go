package tools

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

const webhookID = domain.ToolID("webhook")

// WebhookAdapter delivers payloads to arbitrary HTTP endpoints. It needs no
// OAuth flow; when a signing secret is configured, each delivery carries an
// HMAC-SHA256 signature header so receivers can verify origin.
type WebhookAdapter struct {
	connectedBase
	secret string
}

func NewWebhookAdapter(creds ports.CredentialStore, secret string) *WebhookAdapter {
	return &WebhookAdapter{connectedBase: newConnectedBase(creds, ""), secret: secret}
}

var _ ports.ToolAdapter = (*WebhookAdapter)(nil)

func (a *WebhookAdapter) Capabilities() domain.ToolCapabilities {
	return domain.ToolCapabilities{
		ID:          webhookID,
		Name:        "Webhook",
		Description: "Deliver JSON payloads to arbitrary HTTP endpoints",
		Actions: []domain.ActionSpec{
			{Name: "send", Description: "POST a JSON payload to a URL", Parameters: map[string]any{
				"url":     "string, destination endpoint",
				"payload": "object, JSON body to deliver",
			}},
			{Name: "fetch", Description: "GET a JSON document from a URL", Parameters: map[string]any{
				"url": "string, endpoint to read",
			}},
		},
		RateLimit:    &domain.RateLimit{Requests: 100, Window: time.Minute},
		RequiresAuth: false,
	}
}

// Connect is trivially satisfied: webhooks carry no credentials.
func (a *WebhookAdapter) Connect(ctx context.Context, userID string) domain.ConnectResult {
	return domain.ConnectResult{Connected: true}
}

func (a *WebhookAdapter) Disconnect(ctx context.Context, userID string) error {
	return nil
}

func (a *WebhookAdapter) IsConnected(ctx context.Context, userID string) bool {
	return true
}

func (a *WebhookAdapter) Send(ctx context.Context, agentID, userID string, params map[string]any) *domain.ActionResult {
	target, ok := stringParam(params, "url")
	if !ok {
		return missingParam("url")
	}
	payload, _ := params["payload"].(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}

	body, status, err := a.doSigned(ctx, target, payload)
	if err != nil {
		return transportFail(webhookID, err)
	}
	if status < 200 || status >= 300 {
		return upstreamFail(webhookID, status, body)
	}
	return okResult("payload delivered to "+target, map[string]any{
		"url":      target,
		"status":   status,
		"response": body,
	})
}

func (a *WebhookAdapter) Fetch(ctx context.Context, agentID, userID string, params map[string]any) *domain.ActionResult {
	target, ok := stringParam(params, "url")
	if !ok {
		return missingParam("url")
	}
	body, status, err := a.doJSON(ctx, "GET", target, "", nil)
	if err != nil {
		return transportFail(webhookID, err)
	}
	if status < 200 || status >= 300 {
		return upstreamFail(webhookID, status, body)
	}
	return okResult("fetched "+target, map[string]any{
		"url":  target,
		"body": body,
	})
}

// doSigned posts the payload with an X-Pontoon-Signature header when a
// secret is configured.
func (a *WebhookAdapter) doSigned(ctx context.Context, target string, payload map[string]any) (map[string]any, int, error) {
	if a.secret == "" {
		return a.doJSON(ctx, "POST", target, "", payload)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write(raw)
	return a.doJSONWithHeader(ctx, "POST", target, payload,
		"X-Pontoon-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
}
