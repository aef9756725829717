package tools

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

const githubID = domain.ToolID("github")

// GitHubAdapter files issues and lists them via the REST v3 API.
type GitHubAdapter struct {
	connectedBase
}

func NewGitHubAdapter(creds ports.CredentialStore, baseURL string) *GitHubAdapter {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubAdapter{connectedBase: newConnectedBase(creds, baseURL)}
}

var _ ports.ToolAdapter = (*GitHubAdapter)(nil)

func (a *GitHubAdapter) Capabilities() domain.ToolCapabilities {
	return domain.ToolCapabilities{
		ID:          githubID,
		Name:        "GitHub",
		Description: "Create issues and list repository issues",
		Actions: []domain.ActionSpec{
			{Name: "send", Description: "Open an issue in a repository", Parameters: map[string]any{
				"repo":  "string, owner/name",
				"title": "string, issue title",
				"body":  "string, issue body (optional)",
			}},
			{Name: "fetch", Description: "List open issues in a repository", Parameters: map[string]any{
				"repo":  "string, owner/name",
				"state": "string, open|closed|all (default open)",
			}},
		},
		RateLimit:    &domain.RateLimit{Requests: 30, Window: time.Minute},
		RequiresAuth: true,
	}
}

func (a *GitHubAdapter) Connect(ctx context.Context, userID string) domain.ConnectResult {
	return a.connect(ctx, userID, githubID)
}

func (a *GitHubAdapter) Disconnect(ctx context.Context, userID string) error {
	return a.disconnect(ctx, userID, githubID)
}

func (a *GitHubAdapter) IsConnected(ctx context.Context, userID string) bool {
	return a.isConnected(ctx, userID, githubID)
}

func (a *GitHubAdapter) Send(ctx context.Context, agentID, userID string, params map[string]any) *domain.ActionResult {
	repo, ok := stringParam(params, "repo")
	if !ok {
		return missingParam("repo")
	}
	title, ok := stringParam(params, "title")
	if !ok {
		return missingParam("title")
	}
	payload := map[string]any{"title": title}
	if body, ok := stringParam(params, "body"); ok {
		payload["body"] = body
	}

	respBody, status, err := a.doJSON(ctx, "POST", fmt.Sprintf("%s/repos/%s/issues", a.baseURL, repo),
		a.token(ctx, userID, githubID), payload)
	if err != nil {
		return transportFail(githubID, err)
	}
	if status != 201 {
		return upstreamFail(githubID, status, respBody)
	}

	data := map[string]any{"repo": repo, "title": title}
	if num, ok := respBody["number"].(float64); ok {
		data["issue_number"] = int(num)
	}
	if htmlURL, ok := respBody["html_url"].(string); ok {
		data["url"] = htmlURL
	}
	return okResult(fmt.Sprintf("issue created in %s", repo), data)
}

func (a *GitHubAdapter) Fetch(ctx context.Context, agentID, userID string, params map[string]any) *domain.ActionResult {
	repo, ok := stringParam(params, "repo")
	if !ok {
		return missingParam("repo")
	}
	state := "open"
	if s, ok := stringParam(params, "state"); ok {
		state = s
	}

	endpoint := fmt.Sprintf("%s/repos/%s/issues?state=%s", a.baseURL, repo, url.QueryEscape(state))
	req, err := a.newListRequest(ctx, endpoint, userID, githubID)
	if err != nil {
		return transportFail(githubID, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return transportFail(githubID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return upstreamFail(githubID, resp.StatusCode, nil)
	}

	issues, err := decodeJSONArray(resp.Body)
	if err != nil {
		return transportFail(githubID, err)
	}
	return okResult(fmt.Sprintf("fetched %d %s issues from %s", len(issues), state, repo), map[string]any{
		"repo":   repo,
		"state":  state,
		"issues": issues,
	})
}
